package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"

	"github.com/Benylaode/Analisi-Udara/src/config"
	"github.com/Benylaode/Analisi-Udara/src/dashboard"
	"github.com/Benylaode/Analisi-Udara/src/datapush"
	"github.com/Benylaode/Analisi-Udara/src/datasource/file"
	"github.com/Benylaode/Analisi-Udara/src/processor"
	"github.com/Benylaode/Analisi-Udara/src/report"
	"github.com/Benylaode/Analisi-Udara/src/storage"
	"github.com/Benylaode/Analisi-Udara/src/utils"
)

func main() {
	jsonFolder := "./config"
	jsonFile := "config.json"
	cfg, err := config.LoadConfig(jsonFolder, jsonFile)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.Log.Name)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	logger.SetLevel(storage.ParseLevel(cfg.Log.Level))
	defer logger.Close()

	go echoLogs(logger.Subscribe())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dash, err := buildDashboard(cfg, logger)
	if err != nil {
		logger.Fatal("初始化数据集失败", zap.Error(err))
		return
	}

	var mailer *datapush.Mailer
	if cfg.SendEmail.Enabled {
		mailer = datapush.NewMailer(cfg.SendEmail.Server, cfg.SendEmail.Username,
			cfg.SendEmail.Password, cfg.SendEmail.To, cfg.SendEmail.Subject)
	}

	// 设置定时任务
	c := cron.New()
	cronSpec := fmt.Sprintf("@every %s", cfg.Report.Interval)
	err = c.AddFunc(cronSpec, func() {
		runReport(ctx, cfg, dash, mailer, logger)
	})
	if err != nil {
		logger.Error("创建定时任务失败", zap.Error(err))
		return
	}

	// 启动定时任务
	c.Start()
	defer c.Stop()

	if cfg.Data.Watch {
		go watchDataset(ctx, cfg, dash, logger)
	}

	logger.Info("空气质量报表服务已启动，按Ctrl+C退出",
		zap.String("data", cfg.Data.Path), zap.Duration("interval", cfg.Report.Interval))

	// 首次报表
	runReport(ctx, cfg, dash, mailer, logger)

	waitForShutdown(logger, cfg.Log.Name)
}

// buildDashboard 加载数据集并应用配置中的默认过滤条件
func buildDashboard(cfg *config.Config, logger *storage.Logger) (*dashboard.Dashboard, error) {
	data, err := file.Load(sourceFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	logger.Info("数据集加载完成", zap.Int("rows", data.Nrow()), zap.Strings("stations", data.Stations()))

	mode, err := dashboard.ParseViewMode(cfg.Analysis.View)
	if err != nil {
		return nil, err
	}
	dash := dashboard.New(data, logger,
		dashboard.WithView(mode),
		dashboard.WithCompositeColumn(cfg.Analysis.CompositeColumn),
		dashboard.WithCompletenessThreshold(cfg.Analysis.CompletenessThreshold),
		dashboard.WithCorrelationTarget(cfg.Analysis.CorrelationTarget),
	)

	rng, err := rangeFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	params := cfg.Analysis.Parameters
	if len(params) == 0 {
		params = dashboard.DefaultParameters
	}
	if err := dash.SetFilter(rng, cfg.Analysis.Station, params); err != nil {
		return nil, err
	}
	return dash, nil
}

func sourceFromConfig(cfg *config.Config) file.Source {
	return file.Source{
		Path:      cfg.Data.Path,
		Format:    cfg.Data.Format,
		SheetName: cfg.Data.SheetName,
		HeaderRow: cfg.Data.HeaderRow,
		Encoding:  cfg.Data.Encoding,
	}
}

// rangeFromConfig 空字符串表示该端点未指定
func rangeFromConfig(cfg *config.Config) (processor.DateRange, error) {
	var rng processor.DateRange
	var err error
	if s := cfg.Analysis.StartDate; s != "" {
		if rng.Start, err = utils.ParseTimeString(s); err != nil {
			return rng, fmt.Errorf("analysis.start_date: %w", err)
		}
	}
	if s := cfg.Analysis.EndDate; s != "" {
		if rng.End, err = utils.ParseTimeString(s); err != nil {
			return rng, fmt.Errorf("analysis.end_date: %w", err)
		}
	}
	return rng, nil
}

// runReport 重新计算、导出报表、按需发送邮件，最后检查日志轮转
func runReport(ctx context.Context, cfg *config.Config, dash *dashboard.Dashboard, mailer *datapush.Mailer, logger *storage.Logger) {
	t1 := time.Now()
	view := dash.Recompute()

	path, err := report.Export(view, dash.Filtered(), cfg.Report.OutputDir)
	if err != nil {
		logger.Error("导出报表失败", zap.Error(err))
	} else {
		logger.Info("报表已生成", zap.String("file", path), zap.Int("records", view.Count))
		if mailer != nil {
			if err := mailer.Send(ctx, view, path); err != nil {
				logger.Error("发送报表邮件失败", zap.Error(err))
			}
		}
	}
	logger.Info("数据处理时间", zap.Duration("elapsed", time.Since(t1)))

	if err := logger.CheckRotate(cfg); err != nil {
		logger.Error("日志轮转失败", zap.Error(err))
	}
}

// watchDataset 数据文件变化时重新加载，加载失败则保留旧数据
func watchDataset(ctx context.Context, cfg *config.Config, dash *dashboard.Dashboard, logger *storage.Logger) {
	monitor, err := file.NewFileMonitor(cfg.Data.Path)
	if err != nil {
		logger.Error("创建文件监控失败", zap.Error(err))
		return
	}
	defer monitor.Close()

	err = monitor.Watch(ctx, func(path string) {
		data, err := file.Load(sourceFromConfig(cfg))
		if err != nil {
			logger.Error("重新加载数据失败", zap.String("file", path), zap.Error(err))
			return
		}
		dash.Reload(data)
	})
	if err != nil {
		logger.Error("文件监控错误", zap.Error(err))
	}
}

// echoLogs 把日志同步输出到终端
func echoLogs(logChan <-chan string) {
	for msg := range logChan {
		fmt.Print(msg)
	}
}

// waitForShutdown SIGHUP重新打开日志文件，SIGINT/SIGTERM退出
func waitForShutdown(logger *storage.Logger, logName string) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			if err := logger.Reopen(logName); err != nil {
				logger.Error("重新打开日志失败", zap.Error(err))
			}
			continue
		}
		logger.Info("Received signal: " + sig.String() + ", shutting down...")
		return
	}
}
