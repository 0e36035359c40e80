package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

func ignoreServerClosed(err error) error {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve 는 HTTP 서버를 시작하고 ctx가 취소되면 우아하게 종료한다.
// shutdownTimeout 안에 기존 연결이 정리되지 않으면 강제 종료된다.
func Serve(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err := ignoreServerClosed(err); err != nil {
			return fmt.Errorf("http server listen failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	if err := ignoreServerClosed(<-errCh); err != nil {
		return fmt.Errorf("http server stopped with error: %w", err)
	}
	return nil
}
