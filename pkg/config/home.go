package config

import (
	"os"
	"path/filepath"
	"sync"
)

const (
	envHome      = "FLUTTER_DRIVER_HOME"
	userHomeDir  = ".flutter-driver"
	logsDirName  = "logs"
	logFileName  = "flutter-driver.log"
	installedBin = "bin"
)

var configNames = []string{"flutter-driver.yaml", "flutter-driver.yml"}

var (
	homeMu  sync.Mutex
	homeDir string
)

// homeSource yields a candidate home directory, or "" when it has none.
type homeSource func() string

// homeSources is consulted in order; the first non-empty answer wins.
var homeSources = []homeSource{
	func() string { return os.Getenv(envHome) },
	installHome,
	userHome,
	workingDir,
}

// GetHome returns the directory holding the driver's logs and shared config.
// It is the first of: $FLUTTER_DRIVER_HOME, the install root when the binary
// sits in <root>/bin, ~/.flutter-driver when it holds a config file, the
// working directory.
func GetHome() string {
	homeMu.Lock()
	defer homeMu.Unlock()
	if homeDir == "" {
		homeDir = firstHome(homeSources)
	}
	return homeDir
}

// ResetHome drops the cached home so the next GetHome resolves again.
func ResetHome() {
	homeMu.Lock()
	homeDir = ""
	homeMu.Unlock()
}

// GetLogsDir returns <home>/logs.
func GetLogsDir() string {
	return filepath.Join(GetHome(), logsDirName)
}

// DefaultLogFile returns <home>/logs/flutter-driver.log.
func DefaultLogFile() string {
	return filepath.Join(GetLogsDir(), logFileName)
}

// SearchDirs lists where flutter-driver.yaml is looked for: the working
// directory, then home unless it is the working directory.
func SearchDirs() []string {
	dirs := []string{"."}
	home := GetHome()
	if home == "" || home == "." {
		return dirs
	}
	if cwd, err := os.Getwd(); err == nil && samePath(cwd, home) {
		return dirs
	}
	return append(dirs, home)
}

func firstHome(sources []homeSource) string {
	for _, src := range sources {
		if dir := src(); dir != "" {
			return dir
		}
	}
	return "."
}

func installHome() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return installRoot(exe)
}

// installRoot maps <root>/bin/<binary> to <root>.
func installRoot(exe string) string {
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	dir := filepath.Dir(exe)
	if filepath.Base(dir) != installedBin {
		return ""
	}
	return filepath.Dir(dir)
}

func userHome() string {
	base, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(base, userHomeDir)
	if !hasConfigFile(dir) {
		return ""
	}
	return dir
}

func workingDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}

func hasConfigFile(dir string) bool {
	for _, name := range configNames {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

func samePath(a, b string) bool {
	if ra, err := filepath.EvalSymlinks(a); err == nil {
		a = ra
	}
	if rb, err := filepath.EvalSymlinks(b); err == nil {
		b = rb
	}
	return filepath.Clean(a) == filepath.Clean(b)
}
