package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/auth"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/members"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/qrcode"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newQRCommand writes a member's check-in code to a PNG file without starting the server.
func newQRCommand() *cobra.Command {
	var (
		outPath string
		size    int
	)
	cmd := &cobra.Command{
		Use:   "qr <member_id>",
		Short: "Write a member check-in QR code as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			generator, err := qrcode.NewGenerator(qrcode.GeneratorConfig{
				BaseURL: viper.GetString("public.base_url"),
				Size:    size,
			})
			if err != nil {
				return err
			}
			memberID := members.NormalizeID(args[0])
			content, err := generator.MemberCheckInURL(memberID)
			if err != nil {
				return err
			}
			image, err := generator.MemberPNG(memberID)
			if err != nil {
				return err
			}
			target := outPath
			if target == "" {
				target = memberID + ".png"
			}
			if err := os.WriteFile(target, image, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", content, target)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "Output file (defaults to <member_id>.png)")
	cmd.Flags().IntVar(&size, "size", 0, "Image size in pixels")
	return cmd
}

// newHashPasswordCommand prints a bcrypt hash suitable for auth.admin_password_hash.
func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for the admin password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password from stdin: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
