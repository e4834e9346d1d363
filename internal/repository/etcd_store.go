package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/model"
	"github.com/kirychukyurii/domain-search/internal/util"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const defaultEtcdPrefix = "/domain-search/jobs/"

// etcdStore implements JobStore on etcd, using the key ModRevision as version
type etcdStore struct {
	client      *clientv3.Client
	prefix      string
	leasePrefix string
	logger      *slog.Logger
}

// NewEtcdStore creates a new etcd-backed job store
func NewEtcdStore(cfg config.EtcdConfig, logger *slog.Logger) (JobStore, error) {
	etcdCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	}

	// Configure TLS if provided
	if cfg.TLS != nil {
		tlsConfig, err := util.LoadTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		etcdCfg.TLS = tlsConfig
	}

	client, err := clientv3.New(etcdCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err = client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	logger.Info("connected to etcd cluster", "endpoints", cfg.Endpoints)

	return newEtcdStore(client, cfg.Prefix, logger), nil
}

func newEtcdStore(client *clientv3.Client, prefix string, logger *slog.Logger) *etcdStore {
	if prefix == "" {
		prefix = defaultEtcdPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &etcdStore{
		client:      client,
		prefix:      prefix,
		leasePrefix: strings.TrimSuffix(prefix, "/") + "-owners/",
		logger:      logger,
	}
}

func (e *etcdStore) key(jobID string) string {
	return e.prefix + jobID
}

func (e *etcdStore) ownerKey(jobID string) string {
	return e.leasePrefix + jobID
}

// Load reads the job snapshot from etcd
func (e *etcdStore) Load(ctx context.Context, jobID string) (*model.Job, int64, error) {
	resp, err := e.client.Get(ctx, e.key(jobID))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read job from etcd: %w", err)
	}

	if len(resp.Kvs) == 0 {
		return nil, 0, fmt.Errorf("job %s: %w", jobID, model.ErrNotFound)
	}

	var job model.Job
	if err := json.Unmarshal(resp.Kvs[0].Value, &job); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}

	return &job, resp.Kvs[0].ModRevision, nil
}

// Save writes the snapshot in a transaction guarded by the expected revision
func (e *etcdStore) Save(ctx context.Context, job *model.Job, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	key := e.key(job.ID)
	var cmp clientv3.Cmp
	if expectedVersion == 0 {
		cmp = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
	} else {
		cmp = clientv3.Compare(clientv3.ModRevision(key), "=", expectedVersion)
	}

	resp, err := e.client.Txn(ctx).
		If(cmp).
		Then(clientv3.OpPut(key, string(data))).
		Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to write job to etcd: %w", err)
	}

	if !resp.Succeeded {
		return 0, fmt.Errorf("job %s expected revision %d: %w", job.ID, expectedVersion, model.ErrVersionConflict)
	}

	e.logger.Debug("wrote job to etcd",
		"job_id", job.ID,
		"state", job.State,
		"revision", resp.Header.Revision)

	return resp.Header.Revision, nil
}

// ListActive scans the job prefix for non-terminal snapshots
func (e *etcdStore) ListActive(ctx context.Context) ([]string, error) {
	resp, err := e.client.Get(ctx, e.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs from etcd: %w", err)
	}

	ids := make([]string, 0)
	for _, kv := range resp.Kvs {
		var head struct {
			ID    string         `json:"id"`
			State model.JobState `json:"state"`
		}
		if err := json.Unmarshal(kv.Value, &head); err != nil {
			e.logger.Warn("skipping unreadable job snapshot",
				slog.String("key", string(kv.Key)),
				slog.String("error", err.Error()))
			continue
		}
		if !head.State.IsTerminal() {
			ids = append(ids, head.ID)
		}
	}

	return ids, nil
}

// Claim writes the owner key bound to a fresh etcd lease. When the key is
// already owned by owner, its lease is kept alive instead.
func (e *etcdStore) Claim(ctx context.Context, jobID, owner string, ttl time.Duration) error {
	grant, err := e.client.Grant(ctx, leaseSeconds(ttl))
	if err != nil {
		return fmt.Errorf("failed to grant etcd lease: %w", err)
	}

	key := e.ownerKey(jobID)
	resp, err := e.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, owner, clientv3.WithLease(grant.ID))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		e.revoke(grant.ID)
		return fmt.Errorf("failed to claim job %s: %w", jobID, err)
	}
	if resp.Succeeded {
		return nil
	}

	e.revoke(grant.ID)
	kvs := resp.Responses[0].GetResponseRange().Kvs
	if len(kvs) == 0 {
		// expired between the compare and the read
		return fmt.Errorf("job %s: %w", jobID, model.ErrLeaseHeld)
	}
	if current := string(kvs[0].Value); current != owner {
		return fmt.Errorf("job %s leased by %s: %w", jobID, current, model.ErrLeaseHeld)
	}
	if _, err := e.client.KeepAliveOnce(ctx, clientv3.LeaseID(kvs[0].Lease)); err != nil {
		return fmt.Errorf("job %s: %v: %w", jobID, err, model.ErrLeaseHeld)
	}
	return nil
}

// Renew keeps owner's etcd lease alive. The TTL is fixed at grant time.
func (e *etcdStore) Renew(ctx context.Context, jobID, owner string, _ time.Duration) error {
	kv, err := e.owned(ctx, jobID, owner)
	if err != nil {
		return err
	}
	if _, err := e.client.KeepAliveOnce(ctx, clientv3.LeaseID(kv.Lease)); err != nil {
		if errors.Is(err, rpctypes.ErrLeaseNotFound) {
			return fmt.Errorf("job %s: %w", jobID, model.ErrLeaseLost)
		}
		return fmt.Errorf("failed to renew lease of job %s: %w", jobID, err)
	}
	return nil
}

// Release revokes owner's etcd lease, which deletes the owner key
func (e *etcdStore) Release(ctx context.Context, jobID, owner string) error {
	kv, err := e.owned(ctx, jobID, owner)
	if errors.Is(err, model.ErrLeaseLost) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := e.client.Revoke(ctx, clientv3.LeaseID(kv.Lease)); err != nil && !errors.Is(err, rpctypes.ErrLeaseNotFound) {
		return fmt.Errorf("failed to release job %s: %w", jobID, err)
	}
	return nil
}

func (e *etcdStore) owned(ctx context.Context, jobID, owner string) (*mvccpb.KeyValue, error) {
	resp, err := e.client.Get(ctx, e.ownerKey(jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to read owner of job %s: %w", jobID, err)
	}
	if len(resp.Kvs) == 0 || string(resp.Kvs[0].Value) != owner {
		return nil, fmt.Errorf("job %s: %w", jobID, model.ErrLeaseLost)
	}
	return resp.Kvs[0], nil
}

func (e *etcdStore) revoke(id clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.client.Revoke(ctx, id); err != nil {
		e.logger.Warn("failed to revoke unused etcd lease", slog.String("error", err.Error()))
	}
}

// leaseSeconds rounds ttl up to whole seconds, the etcd lease granularity
func leaseSeconds(ttl time.Duration) int64 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Close closes the etcd client connection
func (e *etcdStore) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
