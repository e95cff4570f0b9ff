package server

import "runtime"

// pollerName reports the readiness notification mechanism the Go runtime's
// network poller uses on this platform. The runtime picks the most efficient
// one available; "poll" is the portable fallback label.
func pollerName() string {
	switch runtime.GOOS {
	case "linux", "android":
		return "epoll"
	case "darwin", "ios", "freebsd", "netbsd", "openbsd", "dragonfly":
		return "kqueue"
	case "windows":
		return "iocp"
	case "solaris", "illumos":
		return "event ports"
	case "aix":
		return "pollset"
	default:
		return "poll"
	}
}
