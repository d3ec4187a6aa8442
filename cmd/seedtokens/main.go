// Command seedtokens loads the broker's scrip master into the token table.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"tradedesk/internal/config"
	"tradedesk/internal/logger"
	"tradedesk/internal/store/gormstore"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath   = flag.String("config", envOr("TRADEDESK_CONFIG", "configs/config.yaml"), "config file")
		file      = flag.String("file", "", "scrip master CSV or token list YAML")
		symbolCol = flag.String("symbol-col", "scripshortname", "CSV column holding the symbol")
		exchCol   = flag.String("exchange-col", "exchangename", "CSV column holding the exchange")
		nameCol   = flag.String("name-col", "scripname", "CSV column holding the description")
	)
	flag.Parse()
	if *file == "" {
		log.Fatal("-file is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logger.SetLevel(cfg.App.LogLevel)

	rows, err := readTokens(*file, columns{symbol: *symbolCol, exchange: *exchCol, name: *nameCol})
	if err != nil {
		log.Fatalf("读取 %s 失败: %v", *file, err)
	}

	st, err := gormstore.Open(cfg.Database)
	if err != nil {
		log.Fatalf("打开账本失败: %v", err)
	}
	defer st.Close()

	res, err := seed(context.Background(), st.Tokens(), rows)
	if err != nil {
		log.Fatalf("seed failed after %d added: %v", res.Added, err)
	}
	fmt.Printf("tokens: added=%d existing=%d skipped=%d\n", res.Added, res.Existing, res.Skipped)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
