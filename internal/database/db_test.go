package database

import (
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/campaign-session/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.Config{DBUser: "app", DBPass: "s3cret", DBHost: "db", DBPort: "3307", DBName: "campaign"})

	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("ParseDSN(%q): %v", dsn, err)
	}
	if mc.User != "app" || mc.Passwd != "s3cret" || mc.Addr != "db:3307" || mc.DBName != "campaign" {
		t.Fatalf("parsed config = %+v", mc)
	}
	if !mc.ParseTime || mc.Loc != time.UTC {
		t.Fatalf("parseTime=%v loc=%v", mc.ParseTime, mc.Loc)
	}
	if !strings.Contains(dsn, "charset=utf8mb4") {
		t.Fatalf("dsn %q lacks charset", dsn)
	}
}
