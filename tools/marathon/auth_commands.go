package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"cinemarathon/internal/apiclient"
	"cinemarathon/models"
)

type credentialFlags struct {
	email         string
	password      string
	passwordStdin bool
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "Account password")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
}

func (f *credentialFlags) credentials(in io.Reader) (models.Credentials, error) {
	password := f.password
	if f.passwordStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return models.Credentials{}, fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return models.Credentials{}, errors.New("a password is required (--password or --password-stdin)")
	}
	return models.Credentials{Email: strings.TrimSpace(f.email), Password: password}, nil
}

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a backend account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := flags.credentials(cmd.InOrStdin())
			if err != nil {
				return err
			}
			client, _, err := ctx.apiClient()
			if err != nil {
				return err
			}
			user, err := client.Register(cmd.Context(), creds)
			if err != nil {
				if apiclient.IsStatus(err, http.StatusConflict) {
					return fmt.Errorf("%s is already registered", creds.Email)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Run `marathon login` to sign in.\n", user.Email)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := flags.credentials(cmd.InOrStdin())
			if err != nil {
				return err
			}
			client, ws, err := ctx.apiClient()
			if err != nil {
				return err
			}
			resp, err := client.Login(cmd.Context(), creds)
			if err != nil {
				if apiclient.IsStatus(err, http.StatusUnauthorized) {
					return errors.New("invalid email or password")
				}
				return err
			}
			if err := ws.SaveToken(resp.Token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s until %s.\n",
				creds.Email, resp.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := ctx.workspace()
			if err != nil {
				return err
			}
			if err := ws.ClearToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
