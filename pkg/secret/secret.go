// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secret keeps credentials such as the telephony auth token in
// encrypted, mlocked memory instead of plain Go strings.
package secret

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// MinMlockLimitKB is the mlock limit below which a warning is logged.
const MinMlockLimitKB = 64

// ErrEmpty is returned by Use on a Secret holding nothing.
var ErrEmpty = errors.New("secret: empty")

var (
	initOnce        sync.Once
	mlockSufficient bool
	mlockLimitKB    int64
)

// Secret is an encrypted credential. The zero value and nil are empty.
//
// Thread Safety: Safe for concurrent use.
type Secret struct {
	enclave *memguard.Enclave
}

// New seals value into an enclave and wipes the source bytes.
//
// Description:
//
//	Initializes memguard on first use: installs the interrupt handler that
//	purges secure memory on SIGINT/SIGTERM and checks the mlock limit.
//	An empty value produces an empty Secret.
//
// Inputs:
//
//	value - The plaintext credential.
//
// Outputs:
//
//	*Secret - Never nil.
func New(value string) *Secret {
	initMemguard()
	if value == "" {
		return &Secret{}
	}
	return &Secret{enclave: memguard.NewEnclave([]byte(value))}
}

// IsEmpty reports whether the secret holds nothing.
func (s *Secret) IsEmpty() bool {
	return s == nil || s.enclave == nil
}

// Use decrypts the secret into a locked buffer for the duration of fn.
//
// The slice passed to fn is wiped when fn returns and must not be
// retained.
func (s *Secret) Use(fn func([]byte) error) error {
	if s.IsEmpty() {
		return ErrEmpty
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return fmt.Errorf("open enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// IsMlockAvailable returns whether the mlock limit is high enough and the
// limit in KB (-1 if unlimited).
func IsMlockAvailable() (bool, int64) {
	initMemguard()
	return mlockSufficient, mlockLimitKB
}

// Purge wipes all secure memory. Call during shutdown.
func Purge() {
	memguard.Purge()
	slog.Info("Purged all secure memory")
}

func initMemguard() {
	initOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, mlockLimitKB = checkMlockLimit()
		if !mlockSufficient {
			slog.Warn("mlock limit is low, secrets may be swapped to disk",
				"current_limit_kb", mlockLimitKB,
				"required_kb", MinMlockLimitKB)
		}
	})
}

func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}
