package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"photo-vault/internal/logging"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// LogDatabaseInit logs registry initialization
func LogDatabaseInit(path string, duration time.Duration) {
	logSection("REGISTRY INITIALIZATION")
	logging.Info("  Database file:   %s", path)
	logging.Info("  [OK] Registry initialized in %v", duration)
}

// LogThumbnailBackend logs which thumbnail backend was selected
func LogThumbnailBackend(requested, active string) {
	if requested != active {
		logging.Warn("  Thumbnail backend %q unavailable, using %q", requested, active)
		return
	}
	logging.Info("  Thumbnail backend: %s", active)
}

// LogPhaseStart logs the start of a pipeline phase
func LogPhaseStart(phase string) {
	logSection(strings.ToUpper(phase))
}

// LogCatalogSummary logs the result of a catalog pass
func LogCatalogSummary(discovered, hashed, skipped, scanned, inserted int64, batches int, duration time.Duration) {
	logging.Info("  Files discovered:   %d", discovered)
	logging.Info("  Files fingerprinted: %d", hashed)
	logging.Info("  Files skipped:      %d", skipped)
	logging.Info("  Records scanned:    %d", scanned)
	logging.Info("  Records inserted:   %d", inserted)
	logging.Info("  Duplicates dropped: %d", scanned-inserted)
	logging.Info("  Batches:            %d", batches)
	logging.Info("  [OK] Catalog finished in %v", duration.Round(time.Millisecond))
}

// LogThumbnailSummary logs the result of a thumbnail pass
func LogThumbnailSummary(total, succeeded, present, missing, failed int64, duration time.Duration) {
	logging.Info("  Pending records:    %d", total)
	logging.Info("  Generated:          %d", succeeded)
	logging.Info("  Already present:    %d", present)
	logging.Info("  Missing source:     %d", missing)
	if failed > 0 {
		logging.Warn("  Failed:             %d", failed)
	} else {
		logging.Info("  Failed:             0")
	}
	logging.Info("  [OK] Thumbnails finished in %v", duration.Round(time.Millisecond))
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the operator server endpoints
func LogHTTPRoutes(router *mux.Router, port string) {
	logSection("OPERATOR SERVER")
	logging.Info("  Listening on:    http://0.0.0.0:%s", port)

	if !logging.IsDebugEnabled() {
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}

	groups := make(map[string][]RouteInfo)
	for _, route := range routes {
		prefix := getRouteGroup(route.Path)
		groups[prefix] = append(groups[prefix], route)
	}

	groupKeys := make([]string, 0, len(groups))
	for k := range groups {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)

	logging.Debug("  Registered routes (%d total):", len(routes))
	for _, group := range groupKeys {
		logging.Debug("  [%s]", group)
		for _, route := range groups[group] {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)

	first := parts[0]
	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	if first == "" {
		return "root"
	}
	return first
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(reason string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (%s)", reason)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func logSection(title string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

// PrintBanner prints the startup banner and system information.
func PrintBanner() {
	banner := `
------------------------------------------------------------
    ____  __          __           _    __            ____
   / __ \/ /_  ____  / /_____     | |  / /___ ___  __/ / /_
  / /_/ / __ \/ __ \/ __/ __ \    | | / / __ '/ / / / / __/
 / ____/ / / / /_/ / /_/ /_/ /    | |/ / /_/ / /_/ / / /_
/_/   /_/ /_/\____/\__/\____/     |___/\__,_/\__,_/_/\__/

------------------------------------------------------------`
	fmt.Fprintln(os.Stderr, banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
	logSystemInfo()
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}
