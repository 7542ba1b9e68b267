package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
directory:
  bind_dn: cn=usermgrd,ou=services,dc=compute,dc=example,dc=org
  people_base: ou=people,dc=compute,dc=example,dc=org
  group_base: ou=group,dc=compute,dc=example,dc=org
kerberos:
  admin_principal: usermgrd/web.compute.example.org
  keytab: /etc/usermgrd/usermgrd.keytab
  realm: COMPUTE.EXAMPLE.ORG
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Allocator.MinUID != 10000 || cfg.Allocator.MaxUID != 5000000 {
		t.Errorf("unexpected default uid range: [%d, %d]", cfg.Allocator.MinUID, cfg.Allocator.MaxUID)
	}
	if cfg.Allocator.MinGID != cfg.Allocator.MinUID || cfg.Allocator.MaxGID != cfg.Allocator.MaxUID {
		t.Errorf("gid range should default to uid range, got [%d, %d]", cfg.Allocator.MinGID, cfg.Allocator.MaxGID)
	}
	if cfg.Directory.HomeTemplate != "/home/{user}" {
		t.Errorf("unexpected default home template: %q", cfg.Directory.HomeTemplate)
	}
	if cfg.Kerberos.DeletePolicy != DeletePolicyDelete {
		t.Errorf("unexpected default delete policy: %q", cfg.Kerberos.DeletePolicy)
	}
	if cfg.Socket.Mode != 0660 {
		t.Errorf("unexpected default socket mode: %o", cfg.Socket.Mode)
	}
}

func TestLoad_ParsesDurationsAndModes(t *testing.T) {
	path := writeConfig(t, `
socket:
  path: /run/usermgrd/socket
  owner: usermgrd
  group: wwwproxy
  mode: "0600"
directory:
  bind_dn: cn=usermgrd,ou=services,dc=example,dc=com
  people_base: ou=people,dc=example,dc=com
  group_base: ou=group,dc=example,dc=com
  timeout: 2s
kerberos:
  admin_principal: usermgrd/localhost
  keytab: /etc/usermgrd/usermgrd.keytab
  realm: EXAMPLE.COM
  expiry: yesterday
  delete_policy: expire
shutdown_timeout: 1m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Socket.Mode != 0600 {
		t.Errorf("expected socket mode 0600, got %o", cfg.Socket.Mode)
	}
	if cfg.Directory.Timeout != 2*time.Second {
		t.Errorf("expected 2s directory timeout, got %v", cfg.Directory.Timeout)
	}
	if cfg.ShutdownTimeout != time.Minute {
		t.Errorf("expected 1m shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Kerberos.Expiry != ExpiryYesterday {
		t.Errorf("expected yesterday expiry, got %q", cfg.Kerberos.Expiry)
	}
	if cfg.Kerberos.DeletePolicy != DeletePolicyExpire {
		t.Errorf("expected expire delete policy, got %q", cfg.Kerberos.DeletePolicy)
	}
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
directory:
  bind_dn: cn=usermgrd,ou=services,dc=example,dc=com
  people_base: ou=people,dc=example,dc=com
  group_base: ou=group,dc=example,dc=com
kerberos:
  admin_principal: usermgrd/localhost
  keytab: /etc/usermgrd/usermgrd.keytab
  realm: EXAMPLE.COM
allocator:
  min_uid: 1000
  max_uid: 500
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation failure for inverted uid range")
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Allocator.MinGID = 20000
	cfg.Allocator.MaxGID = 30000

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Allocator.MinGID != 20000 || loaded.Allocator.MaxGID != 30000 {
		t.Errorf("gid range not preserved: [%d, %d]", loaded.Allocator.MinGID, loaded.Allocator.MaxGID)
	}
}
