package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mgost/mgost/api"
	"github.com/mgost/mgost/settings"
)

const stampFormat = "02.01.06 15:04"

func newTokenCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Validate the API token and show who owns it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := openEnv(ctx, v)
			if err != nil {
				return err
			}
			defer env.close()

			me, err := env.client.Me(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Token created %s by %s\n", me.Created.Local().Format(stampFormat), me.Owner)
			if me.Expires != nil {
				fmt.Printf("Expires %s\n", me.Expires.Local().Format(stampFormat))
			} else {
				fmt.Println("Never expires")
			}
			fmt.Println("Source:", tokenSourceLabel(env.info.TokenSource()))

			// The claims inside the token itself, when it is a JWT.
			if claims, err := api.DecodeToken(env.info.Token()); err == nil {
				if claims.Subject != "" {
					fmt.Println("Subject:", claims.Subject)
				}
				if !claims.ExpiresAt.IsZero() {
					fmt.Printf("Signed expiry %s\n", claims.ExpiresAt.Local().Format(stampFormat))
				}
			}

			if trust, err := env.client.Trust(ctx); err == nil {
				fmt.Println("Trust level:", trust)
			}
			return nil
		},
	}
}

func tokenSourceLabel(src settings.TokenSource) string {
	switch src {
	case settings.TokenFromEnv:
		return "environment (" + settings.TokenEnvVar + ")"
	case settings.TokenFromDotenv:
		return ".mgost/.env"
	case settings.TokenFromPrompt:
		return "prompt (will be saved to .mgost/.env)"
	default:
		return "unknown"
	}
}
