package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/domain"
)

var tradeHeader = []string{
	"id", "position_id", "order_id", "symbol", "side", "entry_price", "exit_price",
	"quantity", "gross_pnl", "fee", "realized_pnl", "opened_at", "closed_at",
}

// WriteTradesToCSV writes closed trades to filename, creating or truncating it.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := WriteTrades(file, trades); err != nil {
		return err
	}
	return file.Close()
}

// WriteTrades writes a header row followed by one row per trade.
func WriteTrades(w io.Writer, trades []*domain.Trade) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := writer.Write([]string{
			strconv.FormatInt(t.ID, 10),
			t.PositionID,
			t.OrderID,
			t.Symbol,
			string(t.Side),
			t.EntryPrice.String(),
			t.ExitPrice.String(),
			t.Quantity.String(),
			t.GrossPnL.String(),
			t.Fee.String(),
			t.RealizedPnL.String(),
			t.OpenedAt.UTC().Format(time.RFC3339Nano),
			t.ClosedAt.UTC().Format(time.RFC3339Nano),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTradesFromCSV loads trades previously written by WriteTradesToCSV.
func ReadTradesFromCSV(filename string) ([]*domain.Trade, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadTrades(file)
}

// ReadTrades parses the CSV layout produced by WriteTrades.
func ReadTrades(r io.Reader) ([]*domain.Trade, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(tradeHeader)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	trades := make([]*domain.Trade, 0, len(records)-1)
	for i, rec := range records[1:] {
		t, err := parseTradeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func parseTradeRecord(rec []string) (*domain.Trade, error) {
	id, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing id: %w", err)
	}

	t := &domain.Trade{
		ID:         id,
		PositionID: rec[1],
		OrderID:    rec[2],
		Symbol:     rec[3],
		Side:       domain.PositionSide(rec[4]),
	}

	decimals := []*decimal.Decimal{&t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.GrossPnL, &t.Fee, &t.RealizedPnL}
	for j, dst := range decimals {
		v, err := decimal.NewFromString(rec[5+j])
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", tradeHeader[5+j], err)
		}
		*dst = v
	}

	if t.OpenedAt, err = time.Parse(time.RFC3339Nano, rec[11]); err != nil {
		return nil, fmt.Errorf("parsing opened_at: %w", err)
	}
	if t.ClosedAt, err = time.Parse(time.RFC3339Nano, rec[12]); err != nil {
		return nil, fmt.Errorf("parsing closed_at: %w", err)
	}
	return t, nil
}
