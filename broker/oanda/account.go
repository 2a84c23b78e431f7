package oanda

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rustyeddy/autotrader/broker"
)

type accountSummary struct {
	Account struct {
		ID              string `json:"id"`
		Currency        string `json:"currency"`
		Balance         string `json:"balance"`
		NAV             string `json:"NAV"`
		MarginUsed      string `json:"marginUsed"`
		MarginAvailable string `json:"marginAvailable"`
	} `json:"account"`
}

func (c *Client) Account(ctx context.Context) (broker.Account, error) {
	var resp accountSummary
	path := fmt.Sprintf("/v3/accounts/%s/summary", c.accountID)
	if err := c.do(ctx, "get account", http.MethodGet, path, nil, nil, &resp); err != nil {
		return broker.Account{}, err
	}

	a := resp.Account
	acct := broker.Account{
		ID:         a.ID,
		Currency:   a.Currency,
		Balance:    mustPrice(a.Balance),
		Equity:     mustPrice(a.NAV),
		MarginUsed: mustPrice(a.MarginUsed),
		FreeMargin: mustPrice(a.MarginAvailable),
	}
	if acct.MarginUsed > 0 {
		acct.MarginLevel = acct.Equity / acct.MarginUsed
	}
	return acct, nil
}
