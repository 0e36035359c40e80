//go:build wireinject

package app

import "github.com/google/wire"

var anonchatProviderSet = wire.NewSet(
	newAnonchatDataValkey,
	newAnonchatPubSubValkey,
	newAnonchatResponder,
	newAnonchatRuntime,
	newAnonchatHTTPMux,
	newAnonchatHTTPServer,
	newAnonchatServerApp,
)
