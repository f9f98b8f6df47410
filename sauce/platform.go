package sauce

import (
	"fmt"
	"strings"
)

// Platform identifies the operating system a remote browser runs on. Its
// value is the name sent in the "platform" capability.
type Platform string

// The platforms understood by the Sauce Labs WebDriver endpoint.
const (
	Windows      Platform = "WINDOWS"
	XP           Platform = "XP"
	Vista        Platform = "VISTA"
	Win8         Platform = "WIN8"
	Win81        Platform = "WIN8_1"
	Mac          Platform = "MAC"
	SnowLeopard  Platform = "SNOW_LEOPARD"
	MountainLion Platform = "MOUNTAIN_LION"
	Mavericks    Platform = "MAVERICKS"
	Yosemite     Platform = "YOSEMITE"
	Unix         Platform = "UNIX"
	Linux        Platform = "LINUX"
	Android      Platform = "ANDROID"
	Any          Platform = "ANY"
)

// platforms lists every Platform with the lower-case OS name fragments that
// identify it. Order matters when two platforms share a fragment: the first
// one listed wins.
var platforms = []struct {
	p     Platform
	names []string
}{
	{Windows, nil},
	{XP, []string{"windows server 2003", "xp", "windows", "winnt"}},
	{Vista, []string{"windows vista", "windows server 2008", "windows 7", "win7"}},
	{Win8, []string{"windows server 2012", "windows 8", "win8"}},
	{Win81, []string{"windows 8.1", "win8.1"}},
	{Mac, []string{"mac", "darwin", "os x"}},
	{SnowLeopard, []string{"snow leopard", "os x 10.6"}},
	{MountainLion, []string{"mountain lion", "os x 10.8"}},
	{Mavericks, []string{"mavericks", "os x 10.9"}},
	{Yosemite, []string{"yosemite", "os x 10.10"}},
	{Unix, []string{"solaris", "bsd"}},
	{Linux, []string{"linux"}},
	{Android, []string{"android", "dalvik"}},
	{Any, nil},
}

// ParsePlatform maps an operating system name to a Platform.
//
// The name may be a Platform value in any case ("win8", "WIN8_1"), or an OS
// name such as "Windows 8.1" or "Mac OS X". An exact match on a known OS name
// wins; otherwise the platform whose longest known fragment occurs in the name
// is chosen. Names matching nothing return an error wrapping
// ErrUnknownPlatform; there is no fallback platform.
func ParsePlatform(name string) (Platform, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", fmt.Errorf("%w: empty name", ErrUnknownPlatform)
	}
	for _, e := range platforms {
		if n == strings.ToLower(string(e.p)) {
			return e.p, nil
		}
	}

	var (
		best    Platform
		bestLen int
	)
	for _, e := range platforms {
		for _, frag := range e.names {
			if n == frag {
				return e.p, nil
			}
			if strings.Contains(n, frag) && len(frag) > bestLen {
				best, bestLen = e.p, len(frag)
			}
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
	return best, nil
}

func (p Platform) String() string { return string(p) }
