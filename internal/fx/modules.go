package fx

import (
	"csgo-tracker/internal/api"
	"csgo-tracker/internal/config"
	"csgo-tracker/internal/coordinator"
	"csgo-tracker/internal/database"
	"csgo-tracker/internal/logger"
	"csgo-tracker/internal/repository"
	"csgo-tracker/internal/server"
	"csgo-tracker/internal/service"

	"go.uber.org/fx"
)

func ProvideWorkerAPI(client *api.WorkerClient) coordinator.WorkerAPI {
	return client
}

func ProvideMatchSink(ingest *service.IngestService) coordinator.MatchSink {
	return ingest
}

func ProvideCodeMarker(codes *repository.MatchCodeRepository) coordinator.CodeMarker {
	return codes
}

func ProvideNextCoder(client *api.SteamClient) service.NextCoder {
	return client
}

func ProvideJobSubmitter(coord *coordinator.Coordinator) service.JobSubmitter {
	return coord
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewAccountRepository),
	fx.Provide(repository.NewMatchCodeRepository),
	// api clients
	fx.Provide(api.NewSteamClient),
	fx.Provide(api.NewWorkerClient),
	// coordinator
	fx.Provide(ProvideWorkerAPI),
	fx.Provide(ProvideMatchSink),
	fx.Provide(ProvideCodeMarker),
	fx.Provide(coordinator.New),
	// svc
	fx.Provide(service.NewProfileService),
	fx.Provide(service.NewIngestService),
	fx.Provide(ProvideNextCoder),
	fx.Provide(ProvideJobSubmitter),
	fx.Provide(service.NewSharingService),
	// server
	fx.Provide(server.New),
)
