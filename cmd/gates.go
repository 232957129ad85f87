package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/mgost/mgost/api"
	mgErrors "github.com/mgost/mgost/errors"
	"github.com/mgost/mgost/logging"
	"github.com/mgost/mgost/settings"
)

// projectEnv is what a gated command works with: the resolved root,
// its state directory and an authenticated client.
type projectEnv struct {
	root   string
	info   *settings.Info
	client *api.Client
}

// openEnv resolves the project root and the API token and proves the
// token against the service before the command proper runs. Commands
// that talk to the service all pass through here first.
func openEnv(ctx context.Context, v *viper.Viper) (*projectEnv, error) {
	root, err := projectRoot(v)
	if err != nil {
		return nil, err
	}
	info, err := settings.Load(root)
	if err != nil {
		return nil, err
	}
	logging.Init(info.LogPath(), v.GetBool("verbose"))

	token, err := info.ResolveToken(promptToken)
	if err != nil {
		return nil, err
	}

	client := api.New(v.GetString("base-url"), token, api.WithRoot(root))
	if _, err := client.Me(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("token rejected by the service (set %s or rerun to be prompted again): %w",
			settings.TokenEnvVar, err)
	}
	return &projectEnv{root: root, info: info, client: client}, nil
}

// close persists the settings directory and releases the client. A
// token typed at the prompt is written to .mgost/.env here so it is
// only asked once.
func (e *projectEnv) close() {
	if err := e.info.Save(); err != nil {
		logging.Sub("cmd").Warn("saving settings failed", "err", err)
	}
	e.client.Close()
}

// requireProject checks the directory's project binding against the
// service and refreshes the locally remembered project name. The
// returned details carry the document paths render needs.
func (e *projectEnv) requireProject(ctx context.Context) (*api.ProjectDetails, error) {
	id := e.info.Settings.ProjectID
	if id == 0 {
		return nil, fmt.Errorf("no project bound to %s; run \"mgost init\" first", e.root)
	}
	ok, err := e.client.IsProjectAvailable(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w (rebind with \"mgost init\" or pick another id from \"mgost projects\")",
			mgErrors.ProjectUnavailable{ID: id})
	}
	project, err := e.client.Project(ctx, id)
	if err != nil {
		return nil, err
	}
	e.info.Settings.ProjectName = project.Name
	return project, nil
}

// promptToken reads the token without echo when stdin is a terminal,
// or as a plain line when input is piped in.
func promptToken() (string, error) {
	fmt.Fprint(os.Stderr, "API token: ")
	fd := int(os.Stdin.Fd())
	if terminal.IsTerminal(fd) {
		data, err := terminal.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
