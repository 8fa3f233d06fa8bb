package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/focustrack/internal/model"
)

// ProviderMemory はインメモリバックエンドのプロバイダ名。
const ProviderMemory = "memory"

// memoryCollection はIDをキーとしたドキュメントの集合。挿入順を保持する。
type memoryCollection struct {
	docs  map[string]map[string]any
	order []string
}

func newMemoryCollection() *memoryCollection {
	return &memoryCollection{docs: make(map[string]map[string]any)}
}

func (c *memoryCollection) put(id string, doc map[string]any) {
	if _, ok := c.docs[id]; !ok {
		c.order = append(c.order, id)
	}
	c.docs[id] = doc
}

func (c *memoryCollection) remove(id string) bool {
	if _, ok := c.docs[id]; !ok {
		return false
	}
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// each は挿入順にドキュメントを走査する。fnがfalseを返すと走査を打ち切る。
func (c *memoryCollection) each(fn func(doc map[string]any) bool) {
	for _, id := range c.order {
		if !fn(c.docs[id]) {
			return
		}
	}
}

// MemoryConnection はプロセス内のマップにデータを保持するDatabaseConnection。
//
// 3つのリポジトリは同じMemoryConnectionを共有し、単一のミューテックスで保護された
// データストアを参照する。メールアドレスの重複確認と挿入は同じロック内で行う。
// エンティティはドキュメント形式で保存し、読み出しのたびに新しい値へ復元するため、
// 呼び出し側が返却値を変更しても保存済みデータには影響しない。
type MemoryConnection struct {
	mu        sync.Mutex
	connected bool

	users    *memoryCollection
	sessions *memoryCollection
	accounts *memoryCollection
}

// compile-time interface check
var _ DatabaseConnection = (*MemoryConnection)(nil)

// NewMemoryConnection はMemoryConnectionを生成する。
func NewMemoryConnection() *MemoryConnection {
	c := &MemoryConnection{}
	c.resetLocked()
	return c
}

func (c *MemoryConnection) resetLocked() {
	c.users = newMemoryCollection()
	c.sessions = newMemoryCollection()
	c.accounts = newMemoryCollection()
}

// Connect は接続済み状態にする。
func (c *MemoryConnection) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

// Disconnect は保持しているデータを破棄して切断状態にする。
func (c *MemoryConnection) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.resetLocked()
	return nil
}

// IsConnected は接続済みかを返す。
func (c *MemoryConnection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// HealthCheck は接続状態と保持件数を返す。
func (c *MemoryConnection) HealthCheck(_ context.Context) model.HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return model.NewHealthStatus(false, "memory database is not connected")
	}
	return model.NewHealthStatus(true, map[string]any{
		"provider": ProviderMemory,
		"users":    len(c.users.docs),
		"sessions": len(c.sessions.docs),
		"accounts": len(c.accounts.docs),
	})
}

// Name はプロバイダ名を返す。
func (c *MemoryConnection) Name() string {
	return ProviderMemory
}

// ClearAllData は全データを削除する。接続状態は変更しない。
func (c *MemoryConnection) ClearAllData() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// withLock はデータストアのロックを取得してfnを実行する。
func (c *MemoryConnection) withLock(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}
