package sham

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// 时钟模式
const (
	// ClockVirtual 虚拟时钟：CPU 空闲时直接拨快到下一个 tick
	ClockVirtual = "virtual"
	// ClockReal 真实时钟：Timer 设备按 TimerFreq 发时钟中断
	ClockReal = "real"
)

// Config 是启动配置
type Config struct {
	MLFQS         bool   `yaml:"mlfqs"`
	TimeSlice     int    `yaml:"time_slice"`
	TimerFreq     int    `yaml:"timer_freq"`
	DonationDepth int    `yaml:"donation_depth"`
	MaxThreads    int    `yaml:"max_threads"`
	Clock         string `yaml:"clock"`
	LogLevel      string `yaml:"log_level"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		TimeSlice:     4,
		TimerFreq:     100,
		DonationDepth: 8,
		MaxThreads:    64,
		Clock:         ClockVirtual,
		LogLevel:      "info",
	}
}

// withDefaults 把零值字段换成默认值
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TimeSlice == 0 {
		c.TimeSlice = d.TimeSlice
	}
	if c.TimerFreq == 0 {
		c.TimerFreq = d.TimerFreq
	}
	if c.DonationDepth == 0 {
		c.DonationDepth = d.DonationDepth
	}
	if c.MaxThreads == 0 {
		c.MaxThreads = d.MaxThreads
	}
	if c.Clock == "" {
		c.Clock = d.Clock
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	return c
}

// Validate 检查配置是否合法
func (c Config) Validate() error {
	if c.TimeSlice < 1 {
		return fmt.Errorf("time_slice must be positive, got %d", c.TimeSlice)
	}
	if c.TimerFreq < 19 || c.TimerFreq > 1000 {
		return fmt.Errorf("timer_freq must be in [19, 1000], got %d", c.TimerFreq)
	}
	if c.DonationDepth < 1 {
		return fmt.Errorf("donation_depth must be positive, got %d", c.DonationDepth)
	}
	// main 和 idle 各占一页
	if c.MaxThreads < 2 {
		return fmt.Errorf("max_threads must be at least 2, got %d", c.MaxThreads)
	}
	if c.Clock != ClockVirtual && c.Clock != ClockReal {
		return fmt.Errorf("clock must be %q or %q, got %q", ClockVirtual, ClockReal, c.Clock)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// LoadConfig 读取 YAML 配置文件，盖在默认配置上，并校验。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
