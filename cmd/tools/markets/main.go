package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"main/internal/bitget"
	"main/internal/schema"
)

// Lists tradable futures contracts with the scales and minimums the
// trader will enforce, straight from the exchange. Useful when adding
// an instrument to the config.
func main() {
	baseURL := flag.String("base-url", "", "Exchange REST base URL (default: production)")
	productType := flag.String("product-type", "", "Product type (default: USDT-FUTURES)")
	filter := flag.String("filter", "", "Only show symbols containing this substring")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rest := bitget.NewRestClient(bitget.RestConfig{
		BaseURL:     *baseURL,
		ProductType: *productType,
	})
	contracts, err := rest.Contracts(ctx)
	if err != nil {
		log.Fatalf("fetch contracts failed: %v", err)
	}

	needle := strings.ToUpper(*filter)
	shown := 0
	for _, c := range contracts {
		if needle != "" && !strings.Contains(strings.ToUpper(c.Symbol), needle) {
			continue
		}
		shown++
		fmt.Printf("%-20s base=%-6s quote=%-6s price_scale=%s qty_scale=%s min_qty=%s min_notional=%s\n",
			c.Symbol, c.BaseCoin, c.QuoteCoin,
			c.PricePlace, c.VolumePlace, c.MinTradeNum, c.MinTradeUSDT)
	}
	fmt.Printf("\n%d of %d contracts (amounts use %d quote decimals internally)\n",
		shown, len(contracts), schema.QuoteScale)
}
