// Package syncinfo keeps the outcome of the last queue drain in a file.
package syncinfo

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SyncInfo describes the last drain pass.
type SyncInfo struct {
	LastSync  time.Time `json:"last_sync"` // LastSync is when the pass finished.
	Attempted int       `json:"attempted"`
	Replayed  int       `json:"replayed"`
	Failed    int       `json:"failed"`
	Abandoned int       `json:"abandoned"`
	Remaining int       `json:"remaining"` // Remaining counts actions still queued after the pass.
	Error     string    `json:"error,omitempty"`
}

// Clean reports whether the pass left nothing behind.
func (s SyncInfo) Clean() bool {
	return s.Failed == 0 && s.Remaining == 0 && s.Error == ""
}

// SyncManager manages access to and updates of synchronization data.
type SyncManager struct {
	fileMutex sync.RWMutex     // guards the file
	syncData  *MutexedSyncInfo // in-memory copy
	filename  string
}

// MutexedSyncInfo wraps SyncInfo with a mutex for safe access from different goroutines.
type MutexedSyncInfo struct {
	sync.RWMutex
	SyncInfo SyncInfo
}

// NewSyncManager creates a SyncManager backed by fileName and loads any
// record already stored there.
func NewSyncManager(fileName string) (*SyncManager, error) {
	if err := os.MkdirAll(filepath.Dir(fileName), 0755); err != nil {
		return nil, err
	}
	sm := &SyncManager{
		syncData: &MutexedSyncInfo{},
		filename: fileName,
	}
	if _, err := sm.LoadAndUpdateFromFile(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return sm, nil
}

// UpdateSyncInfo updates synchronization data.
func (sm *SyncManager) UpdateSyncInfo(info SyncInfo) {
	sm.syncData.Lock()
	defer sm.syncData.Unlock()
	sm.syncData.SyncInfo = info
}

// GetSyncInfo returns the current synchronization data.
func (sm *SyncManager) GetSyncInfo() SyncInfo {
	sm.syncData.RLock()
	defer sm.syncData.RUnlock()
	return sm.syncData.SyncInfo
}

// SaveSyncInfoToFile saves synchronization data to the file.
func (sm *SyncManager) SaveSyncInfoToFile() error {
	sm.fileMutex.Lock()
	defer sm.fileMutex.Unlock()

	data, err := json.MarshalIndent(sm.GetSyncInfo(), "", "  ")
	if err != nil {
		return err
	}
	tmp := sm.filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, sm.filename)
}

// LoadSyncInfoFromFile reads the stored record without touching the in-memory copy.
func (sm *SyncManager) LoadSyncInfoFromFile() (SyncInfo, error) {
	sm.fileMutex.RLock()
	defer sm.fileMutex.RUnlock()
	return sm.readFile()
}

// Record updates and saves the outcome of a pass.
func (sm *SyncManager) Record(info SyncInfo) error {
	sm.UpdateSyncInfo(info)
	return sm.SaveSyncInfoToFile()
}

// LoadAndUpdateFromFile loads the stored record and makes it current.
func (sm *SyncManager) LoadAndUpdateFromFile() (SyncInfo, error) {
	sm.fileMutex.Lock()
	defer sm.fileMutex.Unlock()

	info, err := sm.readFile()
	if err != nil {
		return SyncInfo{}, err
	}
	sm.UpdateSyncInfo(info)
	return info, nil
}

func (sm *SyncManager) readFile() (SyncInfo, error) {
	fileContent, err := os.ReadFile(sm.filename)
	if err != nil {
		return SyncInfo{}, err
	}
	var info SyncInfo
	if len(fileContent) == 0 {
		return info, nil
	}
	if err := json.Unmarshal(fileContent, &info); err != nil {
		return SyncInfo{}, err
	}
	return info, nil
}
