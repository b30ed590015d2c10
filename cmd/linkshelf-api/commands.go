package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/MarcoPoloResearchLab/linkshelf/internal/auth"
	"github.com/MarcoPoloResearchLab/linkshelf/internal/compose"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMetadataCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metadata <url>",
		Short: "Fetch and print the metadata of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			result, err := newExtractor(appConfig, logger).Extract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

type postLinkOptions struct {
	user        string
	url         string
	title       string
	description string
	mediaType   string
	collection  string
	tags        string
}

func newPostLinkCommand() *cobra.Command {
	var options postLinkOptions
	cmd := &cobra.Command{
		Use:   "post-link",
		Short: "Save a link for a user, autofilling fields from the page",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close()

			flow, err := compose.NewFlow(compose.FlowConfig{
				Extractor:   app.extractor,
				Collections: app.profiles,
				Links:       app.links,
				Logger:      app.logger,
			})
			if err != nil {
				return err
			}
			if err := flow.Start(cmd.Context(), options.user); err != nil {
				return err
			}
			if err := flow.EnterURL(cmd.Context(), options.url); err != nil {
				return err
			}
			if message := flow.Message(); message != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), message)
			}

			flags := cmd.Flags()
			if flags.Changed("title") {
				if err := flow.SetTitle(options.title); err != nil {
					return err
				}
			}
			if flags.Changed("description") {
				if err := flow.SetDescription(options.description); err != nil {
					return err
				}
			}
			if flags.Changed("media-type") {
				if err := flow.SetMediaType(options.mediaType); err != nil {
					return err
				}
			}
			if flags.Changed("collection") {
				if err := flow.SelectCollection(options.collection); err != nil {
					return err
				}
			}
			if flags.Changed("tags") {
				if err := flow.SetTags(options.tags); err != nil {
					return err
				}
			}

			created, err := flow.Submit(cmd.Context())
			if err != nil {
				return err
			}
			app.logger.Info("link posted", zap.String("link_id", created.ID), zap.String("user_id", created.UserID))
			return writeJSON(cmd.OutOrStdout(), created)
		},
	}

	cmd.Flags().StringVar(&options.user, "user", "", "Identity provider user id or profile id")
	cmd.Flags().StringVar(&options.url, "url", "", "URL to save")
	cmd.Flags().StringVar(&options.title, "title", "", "Title (overrides the page title)")
	cmd.Flags().StringVar(&options.description, "description", "", "Description, at most 150 characters")
	cmd.Flags().StringVar(&options.mediaType, "media-type", "", "ARTICLE, VIDEO, PODCAST, IMAGE, WEBSITE or OTHER")
	cmd.Flags().StringVar(&options.collection, "collection", "", "One of the user's collections")
	cmd.Flags().StringVar(&options.tags, "tags", "", "Comma-separated tags, first three are kept")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newSessionTokenCommand() *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "session-token",
		Short: "Mint a session token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, _, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			if !appConfig.SessionAuthEnabled() {
				return fmt.Errorf("auth.session_signing_secret is not configured")
			}
			issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(appConfig.SessionSigningSecret),
				Issuer:        appConfig.SessionIssuer,
				TTL:           ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(user)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"token":      token,
				"expires_at": expiresAt,
				"cookie":     appConfig.SessionCookieName,
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Identity provider user id (session subject)")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*time.Minute, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
