package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/chiwei-platform/bkapp-engine/internal/adapter/http"
	"github.com/chiwei-platform/bkapp-engine/internal/adapter/kubernetes"
	"github.com/chiwei-platform/bkapp-engine/internal/adapter/repository"
	"github.com/chiwei-platform/bkapp-engine/internal/service"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the BkApp status watcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not run AutoMigrate on startup")
	return cmd
}

func serve(ctx context.Context, skipMigrate bool) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	policy, err := service.ParseConflictPolicy(cfg.FieldConflictPolicy)
	if err != nil {
		return err
	}

	// 数据库
	db, err := repository.OpenDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if !skipMigrate {
		if err := repository.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// 存储层
	tx := repository.NewTxManager(db)
	appRepo := repository.NewApplicationRepo(db)
	moduleRepo := repository.NewModuleRepo(db)
	fieldsRepo := repository.NewManagedFieldsRepo(db)
	modelRepo := repository.NewAppModelRepo(db)
	deployRepo := repository.NewDeployRepo(db)
	mountRepo := repository.NewMountRepo(db)
	appDomainRepo := repository.NewAppDomainRepo(db)
	domainRepo := repository.NewDomainRepo(db)
	certRepo := repository.NewCertRepo(db)

	// K8s 客户端
	clients, err := kubernetes.NewClients(cfg.KubeconfigPath)
	if err != nil {
		return fmt.Errorf("k8s client: %w", err)
	}
	applier := kubernetes.NewDynamicBkAppApplier(clients.Dynamic, cfg.WatchNamespace)
	ingressStore := kubernetes.NewIngressStore(clients.Typed)
	secretStore := kubernetes.NewSecretStore(clients.Typed)

	// 服务层
	store := service.NewRowGroupStore(fieldsRepo)
	appSvc := service.NewApplicationService(appRepo, moduleRepo, modelRepo, tx, cfg.Region)
	modelSvc := service.NewAppModelService(appSvc, modelRepo, store, tx, policy)
	specSvc := service.NewProcessSpecService(modelSvc, store, tx, policy)
	appDescSvc := service.NewAppDescService(specSvc)
	mountSvc := service.NewMountService(appSvc, mountRepo, secretStore)
	deploySvc := service.NewDeployService(appSvc, modelSvc, deployRepo, mountSvc, applier, tx)
	reconciler := service.NewIngressReconciler(appDomainRepo, ingressStore, secretStore,
		service.NewIngressDomainFactory(certRepo),
		service.IngressConfig{
			AppIngressClass:          cfg.AppIngressClass,
			CustomDomainIngressClass: cfg.CustomDomainIngressClass,
			ServicePortName:          cfg.DefaultServicePortName,
		})
	domainSvc := service.NewDomainService(appSvc, appDomainRepo, domainRepo, reconciler, tx, service.DomainServiceOptions{
		SubDomainRoots: cfg.SubDomainRoots,
		SubDomainHTTPS: cfg.SubDomainHTTPS,
	})

	// HTTP 路由
	handler := httpadapter.NewRouter(
		httpadapter.NewApplicationHandler(appSvc),
		httpadapter.NewAppModelHandler(modelSvc, specSvc, appDescSvc),
		httpadapter.NewMountHandler(mountSvc),
		httpadapter.NewDeployHandler(deploySvc),
		httpadapter.NewDomainHandler(domainSvc),
		cfg.APIToken,
		logger,
	)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 启动 BkApp Informer
	if cfg.WatchBkAppStatus {
		g.Go(func() error {
			err := applier.Watch(gctx, deploySvc.OnBkAppStatusChange)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		return err
	}
	return nil
}

