package datapush

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"os"
	"strings"
	"time"

	"github.com/jordan-wright/email"

	"github.com/Benylaode/Analisi-Udara/src/dashboard"
	"github.com/Benylaode/Analisi-Udara/src/processor"
)

// 常量定义
const (
	RETRY_TIMES    = 5
	RETRY_INTERVAL = 2 * time.Second
	DEFAULT_PORT   = "465" // 默认 SSL 端口
)

// Mailer 通过SMTP发送报表
type Mailer struct {
	Server   string
	Username string
	Password string
	To       []string
	Subject  string

	// send 实际发送函数，测试时可替换
	send func(e *email.Email, addr string, auth smtp.Auth, cfg *tls.Config) error
}

func NewMailer(server, username, password string, to []string, subject string) *Mailer {
	return &Mailer{
		Server:   server,
		Username: username,
		Password: password,
		To:       to,
		Subject:  subject,
		send: func(e *email.Email, addr string, auth smtp.Auth, cfg *tls.Config) error {
			return e.SendWithTLS(addr, auth, cfg)
		},
	}
}

// BuildMessage 根据View生成邮件，attachment为空时不带附件
func (m *Mailer) BuildMessage(view dashboard.View, attachment string) (*email.Email, error) {
	e := email.NewEmail()
	e.From = fmt.Sprintf("Air Quality Dashboard <%s>", m.Username)
	e.To = m.To
	e.Subject = fmt.Sprintf("%s - %s", m.Subject, view.Criteria.Station)
	e.Text = []byte(Summarize(view))

	// 添加附件
	if attachment != "" {
		if _, err := os.Stat(attachment); err != nil {
			return nil, fmt.Errorf("附件文件不存在: %s", attachment)
		}
		if _, err := e.AttachFile(attachment); err != nil {
			return nil, fmt.Errorf("附件添加失败: %w", err)
		}
	}
	return e, nil
}

// Send 发送报表邮件，失败时重试
func (m *Mailer) Send(ctx context.Context, view dashboard.View, attachment string) error {
	e, err := m.BuildMessage(view, attachment)
	if err != nil {
		return err
	}

	// 确保服务器地址包含端口
	smtpAddr := m.Server
	if !strings.Contains(smtpAddr, ":") {
		smtpAddr += ":" + DEFAULT_PORT
	}
	host := strings.Split(smtpAddr, ":")[0]
	auth := smtp.PlainAuth("", m.Username, m.Password, host)

	return retry(ctx, func() error {
		return m.send(e, smtpAddr, auth, &tls.Config{ServerName: host})
	}, RETRY_TIMES, RETRY_INTERVAL)
}

// Summarize 邮件正文
func Summarize(v dashboard.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Station: %s\n", v.Criteria.Station)
	fmt.Fprintf(&b, "Parameters: %s\n", processor.JoinFields(v.Criteria.Parameters))
	fmt.Fprintf(&b, "Range: %s - %s\n", v.Range.Start.Format(processor.TimeLayout), v.Range.End.Format(processor.TimeLayout))
	fmt.Fprintf(&b, "Records: %d\n", v.Count)
	if v.RangeFallback != nil {
		fmt.Fprintf(&b, "Warning: %v\n", v.RangeFallback)
	}

	if v.Mode == dashboard.ViewRange && v.RangeAverages.Available() {
		for _, p := range v.Criteria.Parameters {
			fmt.Fprintf(&b, "Mean %s: %s\n", p, dashboard.FormatValue(v.RangeAverages.Value[p]))
		}
	}

	writeMetric(&b, fmt.Sprintf("Worst station (%d)", v.WorstStationYear), v.WorstStation.Value, v.WorstStation.Err)
	writeMetric(&b, "Worst year", v.WorstYear.Value, v.WorstYear.Err)
	writeMetric(&b, "Strongest correlates", v.Strongest.Value, v.Strongest.Err)
	return b.String()
}

func writeMetric(b *strings.Builder, name string, value interface{}, err error) {
	if err != nil {
		fmt.Fprintf(b, "%s: unavailable (%v)\n", name, err)
		return
	}
	fmt.Fprintf(b, "%s: %v\n", name, value)
}

func retry(ctx context.Context, fn func() error, times int, interval time.Duration) error {
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %w", times, err)
}
