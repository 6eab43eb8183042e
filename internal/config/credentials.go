package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"futures-grid-bot-go/internal/models"
)

// CredentialStore 读写本地保存的交易所名称与 API Key
type CredentialStore struct {
	path string
}

// NewCredentialStore 创建一个指向 path 的存储
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// Path 返回存储文件路径
func (s *CredentialStore) Path() string {
	return s.path
}

// Load 读取保存的信息，文件不存在时返回空记录
func (s *CredentialStore) Load() (models.Credentials, error) {
	var creds models.Credentials

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return creds, err
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return models.Credentials{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return creds, nil
}

// Save 写入信息，先写临时文件再重命名
func (s *CredentialStore) Save(creds models.Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
