package checkpoint

// ============================================================================
// 職責說明：
// 1. 將 ledger 狀態 (types.LedgerSnapshot) 序列化為 JSON 檢查點
// 2. 使用原子性寫入（temp file + rename）防止損壞
// 3. 載入時驗證 schema 版本相容性
//
// 檢查點只用於離線檢視（status 命令），引擎啟動時不會還原。
// ============================================================================

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ChuLiYu/gridpath/pkg/types"
)

// SchemaVersion 目前的檢查點格式版本
const SchemaVersion = 1

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrCorrupted           = errors.New("checkpoint file is corrupted")
	ErrIncompatibleVersion = errors.New("checkpoint schema version is incompatible")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Manager 檢查點管理器
type Manager struct {
	path string     // 檢查點檔案路徑
	mu   sync.Mutex // 保護檔案操作
}

// Summary 檢查點內容的統計
type Summary struct {
	Pending     int
	Processing  int
	Complete    int
	Undelivered int
	NextID      types.RequestID
}

// ============================================================================
// 核心方法實作
// ============================================================================

// NewManager 建立檢查點管理器實例
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Write 原子性寫入檢查點
//
//  1. 寫入臨時檔案（.tmp）
//  2. os.Rename 原子性替換原始檔案
func (m *Manager) Write(data types.LedgerSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data.SchemaVer = SchemaVersion

	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create checkpoint dir: %w", err)
		}
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}
	return nil
}

// Load 載入檢查點
//
// 檔案不存在時回傳空狀態（NextID = 1），不是錯誤。
func (m *Manager) Load() (types.LedgerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var data types.LedgerSnapshot

	jsonBytes, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.LedgerSnapshot{
				Requests:  make(map[types.RequestID]types.PathRequest),
				Results:   make(map[types.RequestID]types.PathResult),
				NextID:    1,
				SchemaVer: SchemaVersion,
			}, nil
		}
		return data, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return data, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if data.SchemaVer != SchemaVersion {
		return data, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, data.SchemaVer, SchemaVersion)
	}

	if data.Requests == nil {
		data.Requests = make(map[types.RequestID]types.PathRequest)
	}
	if data.Results == nil {
		data.Results = make(map[types.RequestID]types.PathResult)
	}
	return data, nil
}

// Exists 檢查檢查點檔案是否存在
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Path 取得檢查點檔案路徑
func (m *Manager) Path() string {
	return m.path
}

// Summarize 統計各狀態的請求數
func Summarize(data types.LedgerSnapshot) Summary {
	s := Summary{NextID: data.NextID}
	for _, req := range data.Requests {
		switch req.State {
		case types.StatePending:
			s.Pending++
		case types.StateProcessing:
			s.Processing++
		case types.StateComplete:
			s.Complete++
		}
	}
	delivered := make(map[types.RequestID]struct{}, len(data.Delivered))
	for _, id := range data.Delivered {
		delivered[id] = struct{}{}
	}
	for id := range data.Results {
		if _, ok := delivered[id]; !ok {
			s.Undelivered++
		}
	}
	return s
}
