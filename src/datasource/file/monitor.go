// monitor.go
package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监听数据文件的写入/替换事件
type FileMonitor struct {
	watchDir   string
	targetFile string
	watcher    *fsnotify.Watcher
	lastMod    time.Time
	mu         sync.Mutex
}

// NewFileMonitor 监听filePath所在目录，编辑器常以重命名方式覆盖文件
func NewFileMonitor(filePath string) (*FileMonitor, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	m := &FileMonitor{
		watchDir:   dir,
		targetFile: abs,
		watcher:    watcher,
	}
	if info, err := os.Stat(abs); err == nil {
		m.lastMod = info.ModTime()
	}
	return m, nil
}

// Watch 阻塞直到ctx结束或watcher出错；文件修改时间前进时同步调用handler
func (m *FileMonitor) Watch(ctx context.Context, handler func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if !m.relevant(event) {
				continue
			}
			info, err := os.Stat(m.targetFile)
			if err != nil {
				continue
			}

			m.mu.Lock()
			changed := info.ModTime().After(m.lastMod)
			if changed {
				m.lastMod = info.ModTime()
			}
			m.mu.Unlock()

			if changed {
				handler(m.targetFile)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// Close 停止监听
func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}

func (m *FileMonitor) relevant(event fsnotify.Event) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != m.targetFile {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
