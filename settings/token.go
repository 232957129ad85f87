package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// TokenSource records where the API token came from.
type TokenSource int

const (
	TokenFromEnv TokenSource = iota + 1
	TokenFromDotenv
	TokenFromPrompt
)

// Token returns the token found by ResolveToken.
func (i *Info) Token() string {
	return i.token
}

// TokenSource returns where the token came from.
func (i *Info) TokenSource() TokenSource {
	return i.tokenSource
}

// ResolveToken locates the API token: the environment wins, then the
// project's dotenv file, then prompt is asked. A prompted token is
// written to the dotenv file on the next Save so it is only asked
// once.
func (i *Info) ResolveToken(prompt func() (string, error)) (string, error) {
	if tok := os.Getenv(TokenEnvVar); tok != "" {
		i.token, i.tokenSource = tok, TokenFromEnv
		return tok, nil
	}

	dotenvPath := filepath.Join(i.dir, dotenvFile)
	if ok, _ := afero.Exists(fs, dotenvPath); ok {
		v := viper.New()
		v.SetFs(fs)
		v.SetConfigFile(dotenvPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err == nil {
			if tok := v.GetString(TokenEnvVar); tok != "" {
				i.token, i.tokenSource = tok, TokenFromDotenv
				return tok, nil
			}
		}
	}

	if prompt == nil {
		return "", fmt.Errorf("no API token in %s or %s", TokenEnvVar, dotenvPath)
	}
	tok, err := prompt()
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", fmt.Errorf("empty API token")
	}
	i.token, i.tokenSource = tok, TokenFromPrompt
	return tok, nil
}

// saveToken persists a prompted token so the next run finds it in the
// dotenv file. Tokens that already came from the environment or the
// dotenv file are left where they are.
func (i *Info) saveToken() error {
	if i.tokenSource != TokenFromPrompt || i.token == "" {
		return nil
	}
	if err := fs.MkdirAll(i.dir, 0755); err != nil {
		return err
	}
	line := fmt.Sprintf("%s=%s\n", TokenEnvVar, i.token)
	return afero.WriteFile(fs, filepath.Join(i.dir, dotenvFile), []byte(line), 0600)
}
