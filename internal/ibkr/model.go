package ibkr

import (
	"encoding/xml"
	"time"
)

// FlexRequestResponse is the acknowledgment returned by the Flex Web Service
// SendRequest endpoint: a reference code plus the URL the generated statement
// will be served from.
type FlexRequestResponse struct {
	XMLName       xml.Name `xml:"FlexStatementResponse"`
	Text          string   `xml:",chardata"`
	Timestamp     string   `xml:"timestamp,attr"`
	Status        string   `xml:"Status"`        // Success or Fail
	ReferenceCode int      `xml:"ReferenceCode"` // Code to download the requested statement
	URL           string   `xml:"Url"`           // URL to download statement
	ErrorCode     *int     `xml:"ErrorCode"`     // If error, the error code
	ErrorMessage  *string  `xml:"ErrorMessage"`  // If error, the verbose message
}

// FlexTrade is one execution row from the statement's Trades section.
// AssetCategory distinguishes stock, option, future and cash-balance rows.
type FlexTrade struct {
	Text          string  `xml:",chardata"`
	AssetCategory string  `xml:"assetCategory,attr"` // STK, OPT, FUT, CASH
	Currency      string  `xml:"currency,attr"`
	Symbol        string  `xml:"symbol,attr"`
	Description   string  `xml:"description,attr"`
	Isin          string  `xml:"isin,attr"`
	Quantity      float64 `xml:"quantity,attr"`
	TradePrice    float64 `xml:"tradePrice,attr"`
	Multiplier    float64 `xml:"multiplier,attr"`
	Expiry        string  `xml:"expiry,attr"` // yyyyMMdd, derivatives only
	IbCommission  float64 `xml:"ibCommission,attr"`
	NetCash       float64 `xml:"netCash,attr"`
	IbOrderID     int64   `xml:"ibOrderID,attr"`
	TransactionID int64   `xml:"transactionID,attr"`
	TradeDate     string  `xml:"tradeDate,attr"`
	Notes         string  `xml:"notes,attr"` // semicolon-separated; codes are case-sensitive ("Ri" != "RI")
	BuySell       string  `xml:"buySell,attr"`
	ReportDate    string  `xml:"reportDate,attr"`
}

// FlexCashTransaction is one row from the CashTransactions section, covering
// dividends and withholding tax.
type FlexCashTransaction struct {
	Text          string  `xml:",chardata"`
	Currency      string  `xml:"currency,attr"`
	Symbol        string  `xml:"symbol,attr"`
	Description   string  `xml:"description,attr"`
	DateTime      string  `xml:"dateTime,attr"`
	Amount        float64 `xml:"amount,attr"`
	Type          string  `xml:"type,attr"` // e.g. Dividends, Withholding Tax
	TransactionID int64   `xml:"transactionID,attr"`
	Isin          string  `xml:"isin,attr"`
	Code          string  `xml:"code,attr"`
	ReportDate    string  `xml:"reportDate,attr"`
	ExDate        string  `xml:"exDate,attr"`
}

// FlexQueryResponse is the generated statement document.
type FlexQueryResponse struct {
	XMLName        xml.Name `xml:"FlexQueryResponse"`
	Text           string   `xml:",chardata"`
	QueryName      string   `xml:"queryName,attr"`
	Type           string   `xml:"type,attr"`
	FlexStatements struct {
		Text          string `xml:",chardata"`
		Count         string `xml:"count,attr"`
		FlexStatement struct {
			Text          string `xml:",chardata"`
			AccountId     string `xml:"accountId,attr"`
			FromDate      string `xml:"fromDate,attr"`
			ToDate        string `xml:"toDate,attr"`
			Period        string `xml:"period,attr"`
			WhenGenerated string `xml:"whenGenerated,attr"`
			Trades        struct {
				Text  string      `xml:",chardata"`
				Trade []FlexTrade `xml:"Trade"`
			} `xml:"Trades"`
			CashTransactions struct {
				Text            string                `xml:",chardata"`
				CashTransaction []FlexCashTransaction `xml:"CashTransaction"`
			} `xml:"CashTransactions"`
		} `xml:"FlexStatement"`
	} `xml:"FlexStatements"`
	ImportedAt time.Time
	QueryID    int
}
