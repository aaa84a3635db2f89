package core

import (
	"context"

	"timebridge.service/internal/adapters/onprem"
	"timebridge.service/internal/adapters/payroll"
	"timebridge.service/internal/adapters/transport"
)

// OnPremAPI is the subset of the device client the engine uses.
type OnPremAPI interface {
	Authorize(ctx context.Context, host string, req onprem.AuthorizeRequest) (*onprem.AuthorizeResult, error)
	AttendanceReport(ctx context.Context, host, token string, q onprem.ReportQuery) (*onprem.ReportPage, error)
}

// PayrollAPI is the subset of the cloud client the engine uses.
type PayrollAPI interface {
	Login(ctx context.Context, baseURL, username, password string) (*payroll.Session, error)
	SyncLogs(ctx context.Context, baseURL, token string, req payroll.SyncRequest) (*transport.Response, error)
}
