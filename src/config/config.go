package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，如 AIRDASH_DATA_PATH
const EnvPrefix = "AIRDASH"

// Config 结构体定义了应用程序的配置结构
type Config struct {
	Data struct {
		Path      string `mapstructure:"path"`       // 数据文件路径
		Format    string `mapstructure:"format"`     // csv | xlsx，为空按扩展名判断
		SheetName string `mapstructure:"sheet_name"` // xlsx工作表名
		HeaderRow int    `mapstructure:"header_row"` // xlsx表头行
		Encoding  string `mapstructure:"encoding"`   // csv编码
		Watch     bool   `mapstructure:"watch"`      // 文件变化时重新加载
	} `mapstructure:"data"`

	Analysis struct {
		Parameters            []string `mapstructure:"parameters"`             // 默认选择的污染物
		Station               string   `mapstructure:"station"`                // 默认站点，为空取第一个
		StartDate             string   `mapstructure:"start_date"`             // 过滤开始日期，为空取全范围
		EndDate               string   `mapstructure:"end_date"`               // 过滤结束日期
		View                  string   `mapstructure:"view"`                   // station | year | range
		CompositeColumn       string   `mapstructure:"composite_column"`       // 综合空气质量列
		CompletenessThreshold int      `mapstructure:"completeness_threshold"` // 年份记录数下限
		CorrelationTarget     string   `mapstructure:"correlation_target"`     // 求最强相关字段的目标列
	} `mapstructure:"analysis"`

	Report struct {
		Interval  time.Duration `mapstructure:"interval"`   // 报表生成间隔
		OutputDir string        `mapstructure:"output_dir"` // 报表输出目录
	} `mapstructure:"report"`

	SendEmail struct {
		Enabled  bool     `mapstructure:"enabled"`
		Server   string   `mapstructure:"server"`   // 邮件服务器地址
		Username string   `mapstructure:"username"` // 邮箱用户名
		Password string   `mapstructure:"password"` // 邮箱密码
		To       []string `mapstructure:"to"`       // 收件人
		Subject  string   `mapstructure:"subject"`  // 邮件主题
	} `mapstructure:"send_email"`

	Log struct {
		Name    string `mapstructure:"name"`
		Level   string `mapstructure:"level"`
		MaxSize string `mapstructure:"max_size"` // 形如 "10 * 1024 * 1024"
	} `mapstructure:"log"`
}

var (
	once     sync.Once
	instance *Config
	loadErr  error
)

// LoadConfig 只加载一次，之后返回同一份配置
func LoadConfig(jsonFolder, jsonFile string) (*Config, error) {
	once.Do(func() {
		instance, loadErr = Load(filepath.Join(jsonFolder, jsonFile))
	})
	return instance, loadErr
}

// Load 读取配置文件并叠加环境变量；文件不存在时只使用默认值与环境变量
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType(configType(configFile))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析Config失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.path", "./data/data_udarah.csv")
	v.SetDefault("data.format", "")
	v.SetDefault("data.sheet_name", "")
	v.SetDefault("data.header_row", 0)
	v.SetDefault("data.encoding", "utf-8")
	v.SetDefault("data.watch", true)

	v.SetDefault("analysis.parameters", []string{"PM2.5"})
	v.SetDefault("analysis.station", "")
	v.SetDefault("analysis.start_date", "")
	v.SetDefault("analysis.end_date", "")
	v.SetDefault("analysis.view", "station")
	v.SetDefault("analysis.composite_column", "Rata-Rata Kualitas Udarah")
	v.SetDefault("analysis.completeness_threshold", 73210)
	v.SetDefault("analysis.correlation_target", "PM2.5")

	v.SetDefault("report.interval", "1h")
	v.SetDefault("report.output_dir", "./report")

	v.SetDefault("send_email.enabled", false)
	v.SetDefault("send_email.server", "")
	v.SetDefault("send_email.username", "")
	v.SetDefault("send_email.password", "")
	v.SetDefault("send_email.to", []string{})
	v.SetDefault("send_email.subject", "Air quality report")

	v.SetDefault("log.name", "app.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size", "10 * 1024 * 1024")
}

// Validate 汇总所有配置错误
func (c *Config) Validate() error {
	var errs []error
	if c.Data.Path == "" {
		errs = append(errs, errors.New("data.path is required"))
	}
	if c.Report.Interval <= 0 {
		errs = append(errs, fmt.Errorf("report.interval must be positive, got %s", c.Report.Interval))
	}
	if c.Analysis.CompletenessThreshold < 0 {
		errs = append(errs, errors.New("analysis.completeness_threshold must not be negative"))
	}
	if c.SendEmail.Enabled && (c.SendEmail.Server == "" || len(c.SendEmail.To) == 0) {
		errs = append(errs, errors.New("send_email.server and send_email.to are required when enabled"))
	}
	return combineErrors(errs)
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("配置加载遇到多个错误: %w", errors.Join(errs...))
}

func configType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
