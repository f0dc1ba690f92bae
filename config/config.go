// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	Host struct {
		SysFS  string `yaml:"sysfs"`
		ProcFS string `yaml:"procfs"`
	}

	// PowerLog configures the external power logging tool
	PowerLog struct {
		Enabled     *bool         `yaml:"enabled"`
		Path        string        `yaml:"path"` // empty searches well known locations and PATH
		Args        []string      `yaml:"args"` // templates over .Duration .Resolution .File
		Resolution  time.Duration `yaml:"resolution"`
		MaxDuration time.Duration `yaml:"maxDuration"`
		Warmup      time.Duration `yaml:"warmup"`
		Settle      time.Duration `yaml:"settle"`
		Grace       time.Duration `yaml:"grace"`
		TempDir     string        `yaml:"tempDir"`
	}

	Zones struct {
		Zones []string `yaml:"zones"`
	}

	LHM struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	}

	PrometheusSource struct {
		URL     string            `yaml:"url"`
		Queries map[string]string `yaml:"queries"` // rail -> PromQL returning watts
		Timeout time.Duration     `yaml:"timeout"`
	}

	RedfishSource struct {
		ConfigFile string `yaml:"configFile"`
		NodeName   string `yaml:"nodeName"` // host name looked up in the BMC file; defaults to hostname
	}

	// Polling configures the monitoring sources read on demand
	Polling struct {
		Sources    Source           `yaml:"sources"`
		Hwmon      Zones            `yaml:"hwmon"`
		Rapl       Zones            `yaml:"rapl"`
		LHM        LHM              `yaml:"lhm"`
		Prometheus PrometheusSource `yaml:"prometheus"`
		Redfish    RedfishSource    `yaml:"redfish"`
	}

	Telemetry struct {
		Interval    time.Duration `yaml:"interval"`    // sampling interval of polling sources
		JoinTimeout time.Duration `yaml:"joinTimeout"` // 0 waits one interval
		PowerLog    PowerLog      `yaml:"powerlog"`
		Polling     Polling       `yaml:"polling"`
	}

	// Estimator coefficients; per operation costs in joules, powers in watts
	Estimator struct {
		ComparisonJ       float64 `yaml:"comparisonJoules"`
		SwapJ             float64 `yaml:"swapJoules"`
		IterationJ        float64 `yaml:"iterationJoules"`
		MemoryAccessJ     float64 `yaml:"memoryAccessJoules"`
		ActivePowerW      float64 `yaml:"activePowerWatts"`
		MemoryPowerPerGBW float64 `yaml:"memoryPowerPerGBWatts"`
		FallbackPowerW    float64 `yaml:"fallbackPowerWatts"`
		TDPW              float64 `yaml:"tdpWatts"` // 0 disables the utilization model
	}

	Bench struct {
		Workloads string   `yaml:"workloads"` // workload catalogue file
		Runs      int      `yaml:"runs"`
		Sizes     []int    `yaml:"sizes"`
		Inputs    []string `yaml:"inputs"`
		OutputDir string   `yaml:"outputDir"`
	}

	// Development mode settings; disabled by default
	Dev struct {
		FakeMeter struct {
			Enabled *bool    `yaml:"enabled"`
			Zones   []string `yaml:"zones"`
		} `yaml:"fake-meter"`
		Pprof struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"pprof"`
	}
	Web struct {
		Config          string   `yaml:"configFile"`
		ListenAddresses []string `yaml:"listenAddresses"`
	}

	// Exporter configuration
	StdoutExporter struct {
		Enabled *bool `yaml:"enabled"`
	}

	JSONExporter struct {
		Enabled *bool `yaml:"enabled"`
	}

	InfluxExporter struct {
		Enabled *bool  `yaml:"enabled"`
		URL     string `yaml:"url"`
		Token   string `yaml:"token"`
		Org     string `yaml:"org"`
		Bucket  string `yaml:"bucket"`
	}

	PrometheusExporter struct {
		Enabled         *bool    `yaml:"enabled"`
		DebugCollectors []string `yaml:"debugCollectors"`
	}

	Exporter struct {
		Stdout     StdoutExporter     `yaml:"stdout"`
		JSON       JSONExporter       `yaml:"json"`
		Influx     InfluxExporter     `yaml:"influx"`
		Prometheus PrometheusExporter `yaml:"prometheus"`
	}

	Config struct {
		Log       Log       `yaml:"log"`
		Host      Host      `yaml:"host"`
		Telemetry Telemetry `yaml:"telemetry"`
		Estimator Estimator `yaml:"estimator"`
		Bench     Bench     `yaml:"bench"`
		Exporter  Exporter  `yaml:"exporter"`
		Web       Web       `yaml:"web"`
		Dev       Dev       `yaml:"dev"` // WARN: do not expose dev settings as flags
	}
)

type SkipValidation int

const (
	SkipHostValidation SkipValidation = 1
)

// DefaultPort is the default listen address of the web server
const DefaultPort = ":28283"

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	HostSysFSFlag  = "host.sysfs"
	HostProcFSFlag = "host.procfs"

	TelemetryIntervalFlag     = "telemetry.interval"
	TelemetryJoinTimeout      = "telemetry.join-timeout" // not a flag
	TelemetrySourceFlag       = "telemetry.source"
	PowerLogEnabledFlag       = "telemetry.powerlog"
	PowerLogPathFlag          = "telemetry.powerlog.path"
	PowerLogResolutionFlag    = "telemetry.powerlog.resolution"
	LHMURLFlag                = "telemetry.lhm.url"
	PrometheusSourceURLFlag   = "telemetry.prometheus.url"
	RedfishConfigFlag         = "telemetry.redfish.config"
	EstimatorTDPFlag          = "estimator.tdp"
	BenchWorkloadsFlag        = "bench.workloads"
	BenchRunsFlag             = "bench.runs"
	BenchOutputDirFlag        = "bench.output-dir"
	WebConfigFlag             = "web.config-file"
	WebListenAddressFlag      = "web.listen-address"
	ExporterStdoutEnabledFlag = "exporter.stdout"
	ExporterJSONEnabledFlag   = "exporter.json"
	ExporterInfluxEnabledFlag = "exporter.influx"
	ExporterInfluxURLFlag     = "exporter.influx.url"

	ExporterPrometheusEnabledFlag = "exporter.prometheus"
	// NOTE: not a flag
	ExporterPrometheusDebugCollectors = "exporter.prometheus.debug-collectors"

// WARN:  dev settings shouldn't be exposed as flags as flags are intended for end users
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Host: Host{
			SysFS:  "/sys",
			ProcFS: "/proc",
		},
		Telemetry: Telemetry{
			Interval: 100 * time.Millisecond,
			PowerLog: PowerLog{
				Enabled:     ptr.To(true),
				Resolution:  50 * time.Millisecond,
				MaxDuration: 60 * time.Second,
				Warmup:      300 * time.Millisecond,
				Settle:      500 * time.Millisecond,
				Grace:       2 * time.Second,
			},
			Polling: Polling{
				Sources: SourceLocal,
				LHM: LHM{
					Timeout: 2 * time.Second,
				},
				Prometheus: PrometheusSource{
					Timeout: 5 * time.Second,
				},
			},
		},
		Estimator: Estimator{
			ComparisonJ:       1e-9,
			SwapJ:             2e-9,
			IterationJ:        1e-9,
			MemoryAccessJ:     5e-10,
			ActivePowerW:      35,
			MemoryPowerPerGBW: 3,
			FallbackPowerW:    25,
		},
		Bench: Bench{
			Runs:      5,
			Sizes:     []int{100, 1000, 10000},
			Inputs:    []string{"random"},
			OutputDir: ".",
		},
		Exporter: Exporter{
			Stdout: StdoutExporter{
				Enabled: ptr.To(true),
			},
			JSON: JSONExporter{
				Enabled: ptr.To(true),
			},
			Influx: InfluxExporter{
				Enabled: ptr.To(false),
				Bucket:  "joulebench",
			},
			Prometheus: PrometheusExporter{
				Enabled:         ptr.To(false),
				DebugCollectors: []string{"go"},
			},
		},
		Web: Web{
			ListenAddresses: []string{DefaultPort},
		},
	}

	cfg.Dev.FakeMeter.Enabled = ptr.To(false)
	cfg.Dev.Pprof.Enabled = ptr.To(false)
	return cfg
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	var errRet error
	defer func() {
		err = file.Close()
		if err != nil && errRet == nil {
			errRet = err
		}
	}()

	cfg, errRet := Load(file)

	return cfg, errRet
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	// host
	hostSysFS := app.Flag(HostSysFSFlag, "Host sysfs path").Default("/sys").String()
	hostProcFS := app.Flag(HostProcFSFlag, "Host procfs path").Default("/proc").String()

	// telemetry
	interval := app.Flag(TelemetryIntervalFlag, "Sampling interval of polling telemetry sources").Default("100ms").Duration()
	sources := SourceLocal
	app.Flag(TelemetrySourceFlag, "Polling telemetry sources ("+strings.Join(ValidSources(), ",")+"); repeatable").
		SetValue(NewSourceValue(&sources))
	powerLogEnabled := app.Flag(PowerLogEnabledFlag, "Use the external power logging tool when it is installed").Default("true").Bool()
	powerLogPath := app.Flag(PowerLogPathFlag, "Path of the power logging tool").String()
	powerLogResolution := app.Flag(PowerLogResolutionFlag, "Logging resolution of the power logging tool").Default("50ms").Duration()
	lhmURL := app.Flag(LHMURLFlag, "LibreHardwareMonitor remote web server URL").String()
	promURL := app.Flag(PrometheusSourceURLFlag, "Prometheus API URL used as telemetry source").String()
	redfishConfig := app.Flag(RedfishConfigFlag, "BMC configuration file for the redfish source").String()

	tdp := app.Flag(EstimatorTDPFlag, "CPU TDP in watts enabling the utilization model of the estimator; 0 to disable").Default("0").Float64()

	// bench
	workloads := app.Flag(BenchWorkloadsFlag, "Workload catalogue file").String()
	runs := app.Flag(BenchRunsFlag, "Measurements per workload, input and size").Default("5").Int()
	outputDir := app.Flag(BenchOutputDirFlag, "Directory of the JSON report").Default(".").String()

	webConfig := app.Flag(WebConfigFlag, "Web config file path").Default("").String()
	webListenAddresses := app.Flag(WebListenAddressFlag, "Web server listen addresses").Default(DefaultPort).Strings()

	// exporters
	stdoutExporterEnabled := app.Flag(ExporterStdoutEnabledFlag, "Enable stdout exporter").Default("true").Bool()
	jsonExporterEnabled := app.Flag(ExporterJSONEnabledFlag, "Enable JSON report exporter").Default("true").Bool()
	influxExporterEnabled := app.Flag(ExporterInfluxEnabledFlag, "Enable InfluxDB exporter").Default("false").Bool()
	influxURL := app.Flag(ExporterInfluxURLFlag, "InfluxDB server URL").String()
	prometheusExporterEnabled := app.Flag(ExporterPrometheusEnabledFlag, "Enable Prometheus exporter").Default("false").Bool()

	return func(cfg *Config) error {
		// Logging settings
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}

		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[HostSysFSFlag] {
			cfg.Host.SysFS = *hostSysFS
		}

		if flagsSet[HostProcFSFlag] {
			cfg.Host.ProcFS = *hostProcFS
		}

		// telemetry settings
		if flagsSet[TelemetryIntervalFlag] {
			cfg.Telemetry.Interval = *interval
		}
		if flagsSet[TelemetrySourceFlag] {
			cfg.Telemetry.Polling.Sources = sources
		}
		if flagsSet[PowerLogEnabledFlag] {
			cfg.Telemetry.PowerLog.Enabled = powerLogEnabled
		}
		if flagsSet[PowerLogPathFlag] {
			cfg.Telemetry.PowerLog.Path = *powerLogPath
		}
		if flagsSet[PowerLogResolutionFlag] {
			cfg.Telemetry.PowerLog.Resolution = *powerLogResolution
		}
		if flagsSet[LHMURLFlag] {
			cfg.Telemetry.Polling.LHM.URL = *lhmURL
		}
		if flagsSet[PrometheusSourceURLFlag] {
			cfg.Telemetry.Polling.Prometheus.URL = *promURL
		}
		if flagsSet[RedfishConfigFlag] {
			cfg.Telemetry.Polling.Redfish.ConfigFile = *redfishConfig
		}

		if flagsSet[EstimatorTDPFlag] {
			cfg.Estimator.TDPW = *tdp
		}

		if flagsSet[BenchWorkloadsFlag] {
			cfg.Bench.Workloads = *workloads
		}
		if flagsSet[BenchRunsFlag] {
			cfg.Bench.Runs = *runs
		}
		if flagsSet[BenchOutputDirFlag] {
			cfg.Bench.OutputDir = *outputDir
		}

		if flagsSet[WebConfigFlag] {
			cfg.Web.Config = *webConfig
		}

		if flagsSet[WebListenAddressFlag] {
			cfg.Web.ListenAddresses = *webListenAddresses
		}

		if flagsSet[ExporterStdoutEnabledFlag] {
			cfg.Exporter.Stdout.Enabled = stdoutExporterEnabled
		}
		if flagsSet[ExporterJSONEnabledFlag] {
			cfg.Exporter.JSON.Enabled = jsonExporterEnabled
		}
		if flagsSet[ExporterInfluxEnabledFlag] {
			cfg.Exporter.Influx.Enabled = influxExporterEnabled
		}
		if flagsSet[ExporterInfluxURLFlag] {
			cfg.Exporter.Influx.URL = *influxURL
		}

		if flagsSet[ExporterPrometheusEnabledFlag] {
			cfg.Exporter.Prometheus.Enabled = prometheusExporterEnabled
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func trimAll(s []string) {
	for i := range s {
		s[i] = strings.TrimSpace(s[i])
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	c.Host.ProcFS = strings.TrimSpace(c.Host.ProcFS)
	c.Web.Config = strings.TrimSpace(c.Web.Config)
	trimAll(c.Web.ListenAddresses)

	pl := &c.Telemetry.PowerLog
	pl.Path = strings.TrimSpace(pl.Path)
	pl.TempDir = strings.TrimSpace(pl.TempDir)

	p := &c.Telemetry.Polling
	trimAll(p.Hwmon.Zones)
	trimAll(p.Rapl.Zones)
	p.LHM.URL = strings.TrimSuffix(strings.TrimSpace(p.LHM.URL), "/")
	p.Prometheus.URL = strings.TrimSpace(p.Prometheus.URL)
	p.Redfish.ConfigFile = strings.TrimSpace(p.Redfish.ConfigFile)
	p.Redfish.NodeName = strings.TrimSpace(p.Redfish.NodeName)

	c.Bench.Workloads = strings.TrimSpace(c.Bench.Workloads)
	c.Bench.OutputDir = strings.TrimSpace(c.Bench.OutputDir)
	trimAll(c.Bench.Inputs)

	c.Exporter.Influx.URL = strings.TrimSpace(c.Exporter.Influx.URL)
	trimAll(c.Exporter.Prometheus.DebugCollectors)
	trimAll(c.Dev.FakeMeter.Zones)
}

// Validate checks for configuration errors
func (c *Config) Validate(skips ...SkipValidation) error {
	validationSkipped := make(map[SkipValidation]bool, len(skips))
	for _, v := range skips {
		validationSkipped[v] = true
	}
	var errs []string
	{ // log level

		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}

		// Validate logging settings
		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}

	{ // Validate host settings; only linux sources read them
		sources := c.Telemetry.Polling.Sources
		localSource := sources.Has(SourceRapl) || sources.Has(SourceHwmon)
		if _, skip := validationSkipped[SkipHostValidation]; !skip && localSource && runtime.GOOS == "linux" {
			if err := canReadDir(c.Host.SysFS); err != nil {
				errs = append(errs, fmt.Sprintf("invalid sysfs path: %s: %s ", c.Host.SysFS, err.Error()))
			}
			if err := canReadDir(c.Host.ProcFS); err != nil {
				errs = append(errs, fmt.Sprintf("invalid procfs path: %s: %s ", c.Host.ProcFS, err.Error()))
			}
		}
	}
	{ // Telemetry
		t := c.Telemetry
		if t.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid telemetry interval: %s must be positive", t.Interval))
		}
		if t.JoinTimeout < 0 {
			errs = append(errs, fmt.Sprintf("invalid telemetry join timeout: %s can't be negative", t.JoinTimeout))
		}

		pl := t.PowerLog
		if pl.Resolution <= 0 {
			errs = append(errs, fmt.Sprintf("invalid powerlog resolution: %s must be positive", pl.Resolution))
		}
		if pl.MaxDuration < time.Second {
			errs = append(errs, fmt.Sprintf("invalid powerlog max duration: %s must be at least 1s", pl.MaxDuration))
		}
		if pl.Warmup < 0 || pl.Settle < 0 || pl.Grace < 0 {
			errs = append(errs, "invalid powerlog timings: warmup, settle and grace can't be negative")
		}

		p := t.Polling
		if p.Sources.Has(SourceLHM) {
			if err := validateURL(p.LHM.URL); err != nil {
				errs = append(errs, fmt.Sprintf("invalid lhm url %q: %s", p.LHM.URL, err.Error()))
			}
		}
		if p.Sources.Has(SourcePrometheus) {
			if err := validateURL(p.Prometheus.URL); err != nil {
				errs = append(errs, fmt.Sprintf("invalid prometheus source url %q: %s", p.Prometheus.URL, err.Error()))
			}
			if len(p.Prometheus.Queries) == 0 {
				errs = append(errs, "prometheus source enabled but no queries configured")
			}
		}
		if p.Sources.Has(SourceRedfish) {
			if p.Redfish.ConfigFile == "" {
				errs = append(errs, fmt.Sprintf("%s not supplied but redfish source enabled", RedfishConfigFlag))
			} else if err := canReadFile(p.Redfish.ConfigFile); err != nil {
				errs = append(errs, fmt.Sprintf("unreadable redfish config: %s", p.Redfish.ConfigFile))
			}
		}
	}
	{ // Estimator
		e := c.Estimator
		for name, v := range map[string]float64{
			"comparison":    e.ComparisonJ,
			"swap":          e.SwapJ,
			"iteration":     e.IterationJ,
			"memory access": e.MemoryAccessJ,
			"active power":  e.ActivePowerW,
			"memory power":  e.MemoryPowerPerGBW,
			"fallback":      e.FallbackPowerW,
			"tdp":           e.TDPW,
		} {
			if v < 0 {
				errs = append(errs, fmt.Sprintf("invalid estimator %s coefficient: %g can't be negative", name, v))
			}
		}
	}
	{ // Bench
		if c.Bench.Runs < 1 {
			errs = append(errs, fmt.Sprintf("invalid bench runs: %d must be at least 1", c.Bench.Runs))
		}
		for _, s := range c.Bench.Sizes {
			if s < 0 {
				errs = append(errs, fmt.Sprintf("invalid bench size: %d can't be negative", s))
			}
		}
		if c.Bench.Workloads != "" {
			if err := canReadFile(c.Bench.Workloads); err != nil {
				errs = append(errs, fmt.Sprintf("unreadable workload file: %s", c.Bench.Workloads))
			}
		}
	}
	{ // Exporters
		in := c.Exporter.Influx
		if ptr.Deref(in.Enabled, false) {
			if err := validateURL(in.URL); err != nil {
				errs = append(errs, fmt.Sprintf("invalid influx url %q: %s", in.URL, err.Error()))
			}
			if in.Bucket == "" {
				errs = append(errs, "influx exporter enabled but no bucket configured")
			}
		}
	}
	{ // Web config file
		if c.Web.Config != "" {
			if err := canReadFile(c.Web.Config); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web config file. path: %q: %s", c.Web.Config, err.Error()))
			}
		}
	}
	{ // Web listen addresses
		if ptr.Deref(c.Exporter.Prometheus.Enabled, false) {
			if len(c.Web.ListenAddresses) == 0 {
				errs = append(errs, "at least one web listen address must be specified")
			}
			for _, addr := range c.Web.ListenAddresses {
				if addr == "" {
					errs = append(errs, "web listen address cannot be empty")
					continue
				}
				if err := validateListenAddress(addr); err != nil {
					errs = append(errs, fmt.Sprintf("invalid web listen address %q: %s", addr, err.Error()))
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func canReadDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()

	_, err = f.ReadDir(1)
	if err != nil {
		return err
	}

	return nil
}

func canReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()
	buf := make([]byte, 8)
	_, err = f.Read(buf)
	if err != nil {
		return err
	}

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	return nil
}

func validateListenAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	// Use Go's standard library to parse host:port
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}

	// Validate port (host can be empty for listening on all interfaces)
	if err := validatePort(port); err != nil {
		return err
	}

	return nil
}

func validatePort(port string) error {
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric, got %s", port)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", portNum)
	}
	return nil
}

func (c *Config) String() string {
	redacted := *c
	if redacted.Exporter.Influx.Token != "" {
		redacted.Exporter.Influx.Token = "*****"
	}
	bytes, err := yaml.Marshal(&redacted)
	if err == nil {
		return string(bytes)
	}
	// NOTE:  this code path should not happen but if it does (i.e if yaml marshal) fails
	// for some reason, manually build the string
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{HostSysFSFlag, c.Host.SysFS},
		{HostProcFSFlag, c.Host.ProcFS},
		{TelemetryIntervalFlag, c.Telemetry.Interval.String()},
		{TelemetryJoinTimeout, c.Telemetry.JoinTimeout.String()},
		{TelemetrySourceFlag, c.Telemetry.Polling.Sources.String()},
		{PowerLogEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Telemetry.PowerLog.Enabled, false))},
		{PowerLogPathFlag, c.Telemetry.PowerLog.Path},
		{BenchWorkloadsFlag, c.Bench.Workloads},
		{BenchRunsFlag, strconv.Itoa(c.Bench.Runs)},
		{BenchOutputDirFlag, c.Bench.OutputDir},
		{ExporterStdoutEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Stdout.Enabled, false))},
		{ExporterJSONEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.JSON.Enabled, false))},
		{ExporterInfluxEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Influx.Enabled, false))},
		{ExporterPrometheusEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Prometheus.Enabled, false))},
		{ExporterPrometheusDebugCollectors, strings.Join(c.Exporter.Prometheus.DebugCollectors, ", ")},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}
