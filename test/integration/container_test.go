//go:build integration

package integration

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgContainer is a throwaway postgres:16-alpine started through the Docker CLI.
type pgContainer struct {
	id      string
	ConnStr string
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w\n%s", args[0], err, out)
	}
	return strings.TrimSpace(string(out)), nil
}

// startPostgres publishes 5432 on a port Docker picks and waits until the
// server answers queries.
func startPostgres(ctx context.Context) (*pgContainer, error) {
	id, err := docker(ctx, "run", "-d", "--rm",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=sgpd",
		"-e", "POSTGRES_PASSWORD=sgpd",
		"-e", "POSTGRES_DB=sgpd_test",
		"postgres:16-alpine",
	)
	if err != nil {
		return nil, err
	}
	c := &pgContainer{id: id}

	// "127.0.0.1:49153"
	hostPort, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		c.Stop()
		return nil, err
	}
	hostPort = strings.SplitN(hostPort, "\n", 2)[0]
	c.ConnStr = fmt.Sprintf("postgres://sgpd:sgpd@%s/sgpd_test?sslmode=disable", hostPort)

	if err := waitReady(ctx, c.ConnStr, 30*time.Second); err != nil {
		c.Stop()
		return nil, err
	}
	return c, nil
}

func (c *pgContainer) Stop() {
	exec.Command("docker", "rm", "-f", c.id).Run()
}

func waitReady(ctx context.Context, connStr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
		}
		if err == nil {
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %v: %w", timeout, lastErr)
		case <-time.After(500 * time.Millisecond):
		}
	}
}
