// Package vault 用单一密码加密存储的后端 Secret (Access Key 等)
// 密钥派生: PBKDF2-SHA256, 每个 Secret 独立 Salt; 加密: AES-256-GCM
// 没有找回路径：密码丢了只能 Reset 重建 (一次性操作，不是 Bug)
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/pbkdf2"

	"splatvault/pkg/types"
)

const (
	kdfIterations = 310_000
	saltLen       = 16
	keyLen        = 32

	// sentinelID 是一条内部哨兵记录，只用于校验密码
	// 解密失败时报统一的 mismatch 错误，不暴露是哪条 Secret 出的问题
	sentinelID        = "__vault_sentinel__"
	sentinelPlaintext = "splatvault-ok"
)

var ErrLocked = errors.New("vault is locked")

// Record 是一条落盘的加密 Secret
// Salt 每条独立生成，永不复用
type Record struct {
	SecretID   string `cbor:"secret_id"`
	Ciphertext []byte `cbor:"ciphertext"`
	Nonce      []byte `cbor:"nonce"`
	Salt       []byte `cbor:"salt"`
}

// Session 持有本会话解锁后的密码，显式传递，不做全局单例
// 进程退出即消失，绝不序列化
type Session struct {
	mu       sync.Mutex
	password string
	unlocked bool
}

func NewSession() *Session { return &Session{} }

func (s *Session) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

// Clear 清除会话密钥 (整页重载 / 退出时调用)
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.password = ""
	s.unlocked = false
}

func (s *Session) set(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.password = password
	s.unlocked = true
}

func (s *Session) get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.password, s.unlocked
}

// Vault 管理加密记录的持久化 (单个 CBOR 文件)
type Vault struct {
	path    string
	mu      sync.Mutex
	records map[string]Record
}

// Open 加载 (或初始化) Vault 文件
func Open(path string) (*Vault, error) {
	v := &Vault{path: path, records: make(map[string]Record)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}
	if err := cbor.Unmarshal(data, &v.records); err != nil {
		return nil, fmt.Errorf("corrupted vault file: %w", err)
	}
	return v, nil
}

// HasPassword 报告设备上是否已经建立过 Vault 密码
func (v *Vault) HasPassword() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.records[sentinelID]
	return ok
}

// Unlock 用密码解锁会话
// 做法：尝试解密哨兵记录。失败时返回统一的 ErrVaultMismatch，
// 不确认具体是哪条 Secret 解不开 (防 Oracle 泄露)
func (v *Vault) Unlock(s *Session, password string) error {
	v.mu.Lock()
	rec, ok := v.records[sentinelID]
	v.mu.Unlock()
	if !ok {
		return errors.New("no vault password set")
	}

	plain, err := decrypt(rec, password)
	if err != nil || plain != sentinelPlaintext {
		return types.ErrVaultMismatch
	}

	s.set(password)
	return nil
}

// Encrypt 加密一条 Secret 并落盘
// password 为空时复用已解锁的会话；否则密码必填。
// 设备上第一次加密会隐式建立 Vault 密码 (写入哨兵记录)
func (v *Vault) Encrypt(s *Session, secretID, plaintext, password string) error {
	if password == "" {
		pw, ok := s.get()
		if !ok {
			return ErrLocked
		}
		password = pw
	}

	if !v.HasPassword() {
		// 首次加密：先用同一个密码封一条哨兵，之后解锁就靠它校验
		rec, err := encrypt(sentinelID, sentinelPlaintext, password)
		if err != nil {
			return err
		}
		v.mu.Lock()
		v.records[sentinelID] = rec
		v.mu.Unlock()
		s.set(password)
	} else if !s.Unlocked() {
		// 显式给了密码但会话没解锁：先校验，防止用错密码写入解不开的 Secret
		if err := v.Unlock(s, password); err != nil {
			return err
		}
	}

	rec, err := encrypt(secretID, plaintext, password)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.records[secretID] = rec
	v.mu.Unlock()
	return v.persist()
}

// Decrypt 解密一条 Secret，要求会话已解锁
func (v *Vault) Decrypt(s *Session, secretID string) (string, error) {
	pw, ok := s.get()
	if !ok {
		return "", ErrLocked
	}

	v.mu.Lock()
	rec, found := v.records[secretID]
	v.mu.Unlock()
	if !found {
		return "", fmt.Errorf("secret %q: %w", secretID, types.ErrNotFound)
	}

	plain, err := decrypt(rec, pw)
	if err != nil {
		return "", types.ErrVaultMismatch
	}
	return plain, nil
}

// Delete 删除一条 Secret
func (v *Vault) Delete(secretID string) error {
	v.mu.Lock()
	delete(v.records, secretID)
	v.mu.Unlock()
	return v.persist()
}

// Reset 丢弃全部加密记录 (密码丢失时的唯一出路)
func (v *Vault) Reset() error {
	v.mu.Lock()
	v.records = make(map[string]Record)
	v.mu.Unlock()

	err := os.Remove(v.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (v *Vault) persist() error {
	v.mu.Lock()
	data, err := cbor.Marshal(v.records)
	v.mu.Unlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(v.path)
	tmp, err := os.CreateTemp(dir, "vault-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	return os.Rename(tmp.Name(), v.path)
}

// deriveKey: PBKDF2-SHA256 把密码 + Salt 拉伸成 AES-256 密钥
func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfIterations, keyLen, sha256.New)
}

func encrypt(secretID, plaintext, password string) (Record, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return Record{}, err
	}

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return Record{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Record{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Record{}, err
	}

	return Record{
		SecretID:   secretID,
		Ciphertext: gcm.Seal(nil, nonce, []byte(plaintext), nil),
		Nonce:      nonce,
		Salt:       salt,
	}, nil
}

func decrypt(rec Record, password string) (string, error) {
	block, err := aes.NewCipher(deriveKey(password, rec.Salt))
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	plain, err := gcm.Open(nil, rec.Nonce, rec.Ciphertext, nil)
	if err != nil {
		return "", err // GCM 认证失败 = 密码不对
	}
	return string(plain), nil
}
