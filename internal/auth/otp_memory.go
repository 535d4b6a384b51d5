package auth

import (
	"context"
	"sync"
)

// MemoryOTPRecords is an in-process OTP backend for tests and single-node
// development setups.
type MemoryOTPRecords struct {
	mu      sync.Mutex
	records map[string]OTPRecord
}

func NewMemoryOTPRecords() *MemoryOTPRecords {
	return &MemoryOTPRecords{records: make(map[string]OTPRecord)}
}

func (m *MemoryOTPRecords) Set(_ context.Context, key string, rec *OTPRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = *rec
	return nil
}

func (m *MemoryOTPRecords) Get(_ context.Context, key string) (*OTPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryOTPRecords) SetAttempts(_ context.Context, key string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key]; ok {
		rec.Attempts = attempts
		m.records[key] = rec
	}
	return nil
}

func (m *MemoryOTPRecords) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

var _ OTPRecords = (*MemoryOTPRecords)(nil)
