package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/aussiebroadwan/shopauth/pkg/shopsdk"
	"github.com/joho/godotenv"
)

// WriteEnvTokens records state's tokens in the dotenv file at path so tools
// that only read the environment pick them up. Other keys are preserved but
// comments are not. The file holds bearer tokens, so it is created, or left,
// readable by the owner only.
func WriteEnvTokens(path string, state shopsdk.TokenState) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", path, err)
		}
		env = map[string]string{}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		_ = f.Close()
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}

	env["TTS_ACCESS_TOKEN"] = state.AccessToken
	if state.RefreshToken != "" {
		env["TTS_REFRESH_TOKEN"] = state.RefreshToken
	}

	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
