package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/content"
	contentfs "github.com/marmos91/dittorepo/pkg/content/fs"
	contentmemory "github.com/marmos91/dittorepo/pkg/content/memory"
	contents3 "github.com/marmos91/dittorepo/pkg/content/s3"
	"github.com/marmos91/dittorepo/pkg/relocate"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/security"
	"github.com/marmos91/dittorepo/pkg/storage"
	storagebadger "github.com/marmos91/dittorepo/pkg/storage/badger"
	storagememory "github.com/marmos91/dittorepo/pkg/storage/memory"
	"github.com/mitchellh/mapstructure"
)

// decode decodes a type-specific options map into out, accepting duration
// strings such as "10s".
func decode(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

// CreateItemStore creates the item store based on configuration.
//
// Supported types:
//   - "memory": Uses pkg/storage/memory (in-memory storage, ephemeral)
//   - "badger": Uses pkg/storage/badger (BadgerDB storage, persistent)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Item store configuration
//
// Returns:
//   - storage.Store: Initialized item store
//   - error: Configuration or initialization error
func CreateItemStore(ctx context.Context, cfg *StorageConfig) (storage.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		var storeCfg storagememory.Config
		if err := decode(cfg.Memory, &storeCfg); err != nil {
			return nil, fmt.Errorf("failed to decode memory item store config: %w", err)
		}
		return storagememory.NewMemoryStore(storeCfg), nil

	case "badger":
		var storeCfg storagebadger.Config
		if err := decode(cfg.Badger, &storeCfg); err != nil {
			return nil, fmt.Errorf("failed to decode badger item store config: %w", err)
		}
		if storeCfg.DBPath == "" && !storeCfg.InMemory {
			return nil, fmt.Errorf("badger item store: db_path is required")
		}
		store, err := storagebadger.NewBadgerStore(ctx, storeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create badger item store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown item store type: %q (supported: memory, badger)", cfg.Type)
	}
}

// CreateBinaryStores creates every configured binary store, keyed by name.
func CreateBinaryStores(ctx context.Context, cfgs []BinaryStoreConfig) (map[string]content.Store, error) {
	stores := make(map[string]content.Store, len(cfgs))
	for i := range cfgs {
		store, err := CreateBinaryStore(ctx, &cfgs[i])
		if err != nil {
			return nil, fmt.Errorf("binary store %q: %w", cfgs[i].Name, err)
		}
		stores[cfgs[i].Name] = store
	}
	return stores, nil
}

// CreateBinaryStore creates a binary store based on configuration.
//
// Supported types:
//   - "memory": Uses pkg/content/memory (ephemeral, for tests and demos)
//   - "filesystem": Uses pkg/content/fs (local directory)
//   - "s3": Uses pkg/content/s3 (Amazon S3 or compatible storage)
func CreateBinaryStore(ctx context.Context, cfg *BinaryStoreConfig) (content.Store, error) {
	switch cfg.Type {
	case "memory":
		return contentmemory.NewMemoryContentStore(), nil
	case "filesystem":
		var storeCfg contentfs.Config
		if err := decode(cfg.Filesystem, &storeCfg); err != nil {
			return nil, fmt.Errorf("failed to decode filesystem binary store config: %w", err)
		}
		store, err := contentfs.NewFSContentStore(ctx, storeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create filesystem binary store: %w", err)
		}
		return store, nil
	case "s3":
		return createS3BinaryStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown binary store type: %q", cfg.Type)
	}
}

// s3StoreConfig represents S3 configuration loaded from the config file.
type s3StoreConfig struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	PartSize        int64  `mapstructure:"part_size"`
	MaxRetries      int    `mapstructure:"max_retries"`
	SpoolDir        string `mapstructure:"spool_dir"`
}

// createS3BinaryStore creates an S3-based binary store.
func createS3BinaryStore(ctx context.Context, options map[string]any) (content.Store, error) {
	var storeCfg s3StoreConfig
	if err := decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 binary store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 binary store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 binary store: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Static credentials if provided, otherwise the default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			// MinIO and Localstack need path-style addressing
			o.UsePathStyle = true
		}
		if storeCfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Binary Store
	// ========================================================================

	store, err := contents3.NewS3ContentStore(ctx, contents3.Config{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		PartSize:  storeCfg.PartSize,
		SpoolDir:  storeCfg.SpoolDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 binary store: %w", err)
	}

	logger.Info("S3 binary store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// Descriptor converts the repository section to a repository descriptor.
func (r RepositoryConfig) Descriptor() repository.Descriptor {
	return repository.Descriptor{
		Key:                           r.Key,
		Type:                          repository.Type(r.Type),
		Description:                   r.Description,
		BinaryStore:                   r.BinaryStore,
		Includes:                      r.Includes,
		Excludes:                      r.Excludes,
		HandleReleases:                r.HandleReleases == nil || *r.HandleReleases,
		HandleSnapshots:               r.HandleSnapshots == nil || *r.HandleSnapshots,
		SuppressDescriptorConsistency: r.SuppressDescriptorConsistency,
	}
}

// CreateRepositories builds the repository registry over the item store and
// the named binary stores.
func CreateRepositories(cfgs []RepositoryConfig, items storage.Store, binaries map[string]content.Store) (*repository.Registry, error) {
	reg := repository.NewRegistry()
	for i, repoCfg := range cfgs {
		store, ok := binaries[repoCfg.BinaryStore]
		if !ok {
			return nil, fmt.Errorf("repositories[%d]: binary store %q is not defined", i, repoCfg.BinaryStore)
		}
		repo, err := repository.New(repoCfg.Descriptor(), items, store)
		if err != nil {
			return nil, fmt.Errorf("repositories[%d]: %w", i, err)
		}
		if err := reg.Register(repo); err != nil {
			return nil, fmt.Errorf("repositories[%d]: %w", i, err)
		}
		logger.Debug("Registered repository %s (type=%s, binaries=%s)", repoCfg.Key, repoCfg.Type, repoCfg.BinaryStore)
	}
	return reg, nil
}

// CreateAuthorizer builds the authorizer from the security section.
// A disabled section yields security.AllowAll.
func CreateAuthorizer(cfg *SecurityConfig) (security.Authorizer, error) {
	if !cfg.Enabled {
		return security.AllowAll{}, nil
	}

	targets := make([]security.PermissionTarget, 0, len(cfg.Permissions))
	for _, p := range cfg.Permissions {
		principals := make(map[string][]security.Action, len(p.Principals))
		for user, actions := range p.Principals {
			for _, a := range actions {
				principals[user] = append(principals[user], security.Action(a))
			}
		}
		targets = append(targets, security.PermissionTarget{
			Name:         p.Name,
			Repositories: p.Repositories,
			Includes:     p.Includes,
			Excludes:     p.Excludes,
			Principals:   principals,
		})
	}

	acl, err := security.NewACL(cfg.Admins, cfg.AnonymousAccess, targets)
	if err != nil {
		return nil, err
	}
	return acl, nil
}

// Options converts the relocation defaults to engine options.
func (r RelocationConfig) Options() []relocate.Option {
	var opts []relocate.Option
	if r.Strategy == relocate.PerItem.String() {
		opts = append(opts, relocate.WithStrategy(relocate.PerItem))
	}
	if r.FailFast {
		opts = append(opts, relocate.FailFast())
	}
	if r.PruneDeferred {
		opts = append(opts, relocate.PruneDeferred())
	}
	if r.SyncMetadata {
		opts = append(opts, relocate.SyncMetadata())
	}
	return opts
}
