package storage

import (
	"context"

	"github.com/google/uuid"
)

const transportCredentialColumns = `user_id, kind, host, port, username, secret_sealed, from_address, from_name, use_tls, updated_at`

const getTransportCredential = `-- name: GetTransportCredential :one
SELECT ` + transportCredentialColumns + `
FROM transport_credentials
WHERE user_id = $1`

func (q *Queries) GetTransportCredential(ctx context.Context, userID uuid.UUID) (TransportCredential, error) {
	row := q.db.QueryRow(ctx, getTransportCredential, userID)
	return scanTransportCredential(row)
}

const upsertTransportCredential = `-- name: UpsertTransportCredential :one
INSERT INTO transport_credentials (
    user_id, kind, host, port, username, secret_sealed, from_address, from_name, use_tls
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (user_id) DO UPDATE SET
    kind = EXCLUDED.kind,
    host = EXCLUDED.host,
    port = EXCLUDED.port,
    username = EXCLUDED.username,
    secret_sealed = EXCLUDED.secret_sealed,
    from_address = EXCLUDED.from_address,
    from_name = EXCLUDED.from_name,
    use_tls = EXCLUDED.use_tls,
    updated_at = NOW()
RETURNING ` + transportCredentialColumns

type UpsertTransportCredentialParams struct {
	UserID       uuid.UUID `json:"user_id"`
	Kind         string    `json:"kind"`
	Host         string    `json:"host"`
	Port         int32     `json:"port"`
	Username     string    `json:"username"`
	SecretSealed []byte    `json:"secret_sealed"`
	FromAddress  string    `json:"from_address"`
	FromName     string    `json:"from_name"`
	UseTls       bool      `json:"use_tls"`
}

func (q *Queries) UpsertTransportCredential(ctx context.Context, arg UpsertTransportCredentialParams) (TransportCredential, error) {
	row := q.db.QueryRow(ctx, upsertTransportCredential,
		arg.UserID,
		arg.Kind,
		arg.Host,
		arg.Port,
		arg.Username,
		arg.SecretSealed,
		arg.FromAddress,
		arg.FromName,
		arg.UseTls,
	)
	return scanTransportCredential(row)
}

func scanTransportCredential(row rowScanner) (TransportCredential, error) {
	var i TransportCredential
	err := row.Scan(
		&i.UserID,
		&i.Kind,
		&i.Host,
		&i.Port,
		&i.Username,
		&i.SecretSealed,
		&i.FromAddress,
		&i.FromName,
		&i.UseTls,
		&i.UpdatedAt,
	)
	return i, err
}
