package main

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/qrcode"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordCommandPrintsBcryptHash(t *testing.T) {
	cmd := newHashPasswordCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("front-desk\n"))
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("hash-password failed: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("front-desk")); err != nil {
		t.Fatalf("printed hash does not match password: %v", err)
	}
}

func TestHashPasswordCommandRejectsEmptyPassword(t *testing.T) {
	cmd := newHashPasswordCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("\n"))
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected empty password to be rejected")
	}
}

func TestQRCommandWritesMemberPNG(t *testing.T) {
	viper.Set("public.base_url", "https://desk.example.com")
	t.Cleanup(func() { viper.Set("public.base_url", nil) })

	target := filepath.Join(t.TempDir(), "member.png")
	cmd := newQRCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{" m007 ", "--out", target})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("qr command failed: %v", err)
	}
	if !strings.Contains(out.String(), "https://desk.example.com/checkin/M007") {
		t.Fatalf("expected encoded url in output, got %q", out.String())
	}
	file, err := os.Open(target)
	if err != nil {
		t.Fatalf("expected png file: %v", err)
	}
	defer file.Close()
	if _, err := png.Decode(file); err != nil {
		t.Fatalf("invalid png: %v", err)
	}
}

func TestQRCommandRejectsBlankMemberID(t *testing.T) {
	viper.Set("public.base_url", "https://desk.example.com")
	t.Cleanup(func() { viper.Set("public.base_url", nil) })

	target := filepath.Join(t.TempDir(), "blank.png")
	cmd := newQRCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"   ", "--out", target})

	if err := cmd.Execute(); !errors.Is(err, qrcode.ErrMissingMemberID) {
		t.Fatalf("expected missing member id error, got %v", err)
	}
	if _, err := os.Stat(target); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no file for a blank member id, stat err %v", err)
	}
}
