package main

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/sessionguard"
)

// loadConfig uses cheap argon2 parameters and a throttle wide enough that
// the sign-in phase never trips it.
func loadConfig(ops int) sessionguard.Config {
	cfg := sessionguard.DefaultConfig()
	cfg.Tokens.Access.Secret = []byte("loadtest-access-secret-000000001")
	cfg.Tokens.Refresh.Secret = []byte("loadtest-refresh-secret-00000001")
	cfg.Tokens.Reset.Secret = []byte("loadtest-reset-secret-0000000001")
	cfg.Tokens.Recover.Secret = []byte("loadtest-recover-secret-00000001")
	cfg.Tokens.Verify.Secret = []byte("loadtest-verify-secret-000000001")
	cfg.Links = sessionguard.LinksConfig{
		AccountVerify:   "https://load.example.com/verify",
		PasswordRecover: "https://load.example.com/recover",
		PasswordReset:   "https://load.example.com/reset",
	}
	cfg.AccountVerification.SendOnSignUp = false
	cfg.SignIn.MaxAttempts = ops + 1
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
