package storage

import "subdex/internal/market"

var (
	_ market.Repository = (*FileStore)(nil)
	_ market.Custody    = (*FileStore)(nil)
	_ market.Journal    = (*JsonlJournal)(nil)
)
