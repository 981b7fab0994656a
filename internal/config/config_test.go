package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("默认配置应可加载: %v", err)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Fatalf("默认 driver 应为 sqlite, 实际 %q", cfg.Database.Driver)
	}
	if cfg.Analytics.TZOffsetMinutes != 120 {
		t.Fatalf("默认时区偏移应为 120, 实际 %d", cfg.Analytics.TZOffsetMinutes)
	}
	want := []time.Duration{24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour, 90 * 24 * time.Hour}
	if len(cfg.Analytics.ChangeWindows) != len(want) {
		t.Fatalf("change_windows 长度不正确: %v", cfg.Analytics.ChangeWindows)
	}
	for i, w := range want {
		if cfg.Analytics.ChangeWindows[i] != w {
			t.Fatalf("window[%d] = %s, want %s", i, cfg.Analytics.ChangeWindows[i], w)
		}
	}
	if len(cfg.Scraper.FuelTypes) != len(DefaultFuelTypes) {
		t.Fatalf("默认燃料类型数量不正确: %v", cfg.Scraper.FuelTypes)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
database:
  driver: postgres
  dsn: postgres://localhost/fuel
scheduler:
  interval: 15m
analytics:
  tz_offset_minutes: 180
scraper:
  fuel_types:
    - Neste Futura 95
    - Neste Pro Diesel
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FUELWATCH_HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.DSN != "postgres://localhost/fuel" {
		t.Fatalf("database 配置未生效: %+v", cfg.Database)
	}
	if cfg.Scheduler.Interval != 15*time.Minute {
		t.Fatalf("interval = %s, want 15m", cfg.Scheduler.Interval)
	}
	if cfg.Analytics.TZOffsetMinutes != 180 {
		t.Fatalf("tz offset = %d, want 180", cfg.Analytics.TZOffsetMinutes)
	}
	if len(cfg.Scraper.FuelTypes) != 2 {
		t.Fatalf("fuel_types = %v", cfg.Scraper.FuelTypes)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("环境变量应覆盖 http.addr, 实际 %q", cfg.HTTP.Addr)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Database:  DatabaseConfig{Driver: DriverMemory},
			Scheduler: SchedulerConfig{Interval: time.Hour},
			Scraper:   ScraperConfig{FuelTypes: []string{"Neste Futura 95"}},
			HTTP:      HTTPConfig{Addr: ":3000"},
		}
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("合法配置不应报错: %v", err)
	}

	cases := map[string]func(c *Config){
		"unknown driver":   func(c *Config) { c.Database.Driver = "mysql" },
		"postgres no dsn": func(c *Config) { c.Database.Driver = DriverPostgres },
		"zero interval":    func(c *Config) { c.Scheduler.Interval = 0 },
		"no fuel types":    func(c *Config) { c.Scraper.FuelTypes = nil },
		"offset too large": func(c *Config) { c.Analytics.TZOffsetMinutes = 15 * 60 },
		"negative window":  func(c *Config) { c.Analytics.ChangeWindows = []time.Duration{-time.Hour} },
		"telegram token":   func(c *Config) { c.Alerting.Telegram.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("%s 应校验失败", name)
			}
		})
	}
}
