package cron

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/internal/utils"
)

const (
	// GroupRetention serializes the jobs that delete data
	GroupRetention = "retention"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second

	LeaseName = "beacon-cron-leader"

	quarantinePrefix = "quarantine/"
	jobTimeout       = 10 * time.Minute
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupRetention: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg        *config.Config
	log        logger.Logger
	cron       *cronv3.Cron
	cronMu     sync.Mutex
	k8s        kubernetes.Interface
	stopCh     chan struct{}
	stopOnce   sync.Once
	jobIDs     map[string]cronv3.EntryID
	activity   interfaces.ActivityLogRepository
	quarantine interfaces.StorageService
	now        func() time.Time
}

// NewCronManager wires the scheduled jobs. activity and quarantine may be nil; their jobs are then not
// registered.
func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface, activity interfaces.ActivityLogRepository, quarantine interfaces.StorageService) *CronManager {
	return &CronManager{
		cfg:        cfg,
		log:        log,
		k8s:        k8s,
		stopCh:     make(chan struct{}),
		jobIDs:     make(map[string]cronv3.EntryID),
		activity:   activity,
		quarantine: quarantine,
		now:        utils.Now,
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil {
		cm.log.Info("Starting cron manager in local mode")
		return cm.StartCron()
	}
	if podName == "" {
		return errors.New("pod name is required for leader election")
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      LeaseName,
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock:            lock,
		ReleaseOnCancel: true,
		LeaseDuration:   LeaseDuration,
		RenewDeadline:   RenewDeadline,
		RetryPeriod:     RetryPeriod,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				if err := cm.StartCron(); err != nil {
					cm.log.Errorf("Failed to start crons after winning leadership: %v", err)
				}
			},
			OnStoppedLeading: func() {
				cm.log.Info("Leader lost - stopping crons")
				cm.stopCron()
			},
			OnNewLeader: func(identity string) {
				cm.log.Infof("New leader elected: %s", identity)
			},
		},
	})
	if err != nil {
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		return cm.StartCron()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cm.stopCh
		cancel()
	}()
	go func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		le.Run(ctx)
	}()

	return nil
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		cm.stopCron()
		close(cm.stopCh)
	})
}

func (cm *CronManager) stopCron() {
	cm.cronMu.Lock()
	c := cm.cron
	cm.cron = nil
	cm.cronMu.Unlock()

	if c != nil {
		cm.log.Info("Stopping cron manager")
		ctx := c.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	cronConfig := cm.cfg.CronConfig
	if cronConfig == nil {
		return errors.New("cron config is nil")
	}

	if cronConfig.CronScheduleHeartbeat != "" {
		podName := cm.podName()
		if err := cm.addJob(c, "heartbeat", cronConfig.CronScheduleHeartbeat, func() {
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		}); err != nil {
			return err
		}
	}

	if cm.activity != nil && cronConfig.CronScheduleActivityRetention != "" {
		if err := cm.addJob(c, "activity_retention", cronConfig.CronScheduleActivityRetention, func() {
			jobLocks.locks[GroupRetention].Lock()
			defer jobLocks.locks[GroupRetention].Unlock()
			cm.runActivityRetention()
		}); err != nil {
			return err
		}
	}

	if cm.quarantine != nil && cronConfig.CronScheduleQuarantineRetention != "" {
		if err := cm.addJob(c, "quarantine_retention", cronConfig.CronScheduleQuarantineRetention, func() {
			jobLocks.locks[GroupRetention].Lock()
			defer jobLocks.locks[GroupRetention].Unlock()
			cm.runQuarantineRetention()
		}); err != nil {
			return err
		}
	}

	return nil
}

func (cm *CronManager) addJob(c *cronv3.Cron, name, schedule string, fn func()) error {
	id, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		fn()
	})
	if err != nil {
		return errors.Wrapf(err, "could not add %s cron job", name)
	}
	cm.jobIDs[name] = id
	cm.log.Infof("Registered %s job with schedule: %s", name, schedule)
	return nil
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() error {
	cm.cronMu.Lock()
	defer cm.cronMu.Unlock()
	if cm.cron != nil {
		return nil
	}

	cm.log.Info("Starting cron manager")
	// Create a new cron with seconds field enabled and panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithLocation(time.UTC),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

func (cm *CronManager) podName() string {
	if cm.cfg.AppConfig != nil && cm.cfg.AppConfig.PodName != "" {
		return cm.cfg.AppConfig.PodName
	}
	return "local"
}

func (cm *CronManager) runActivityRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.runActivityRetention")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	days := 30
	if cm.cfg.ActivityConfig != nil && cm.cfg.ActivityConfig.RetentionDays > 0 {
		days = cm.cfg.ActivityConfig.RetentionDays
	}
	cutoff := cm.now().AddDate(0, 0, -days)
	span.LogKV("cutoff", cutoff.Format(time.RFC3339))

	deleted, err := cm.activity.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to delete activity logs older than %s: %v", cutoff.Format(time.RFC3339), err)
		return
	}

	cm.log.Infof("Activity retention removed %d entries older than %d days", deleted, days)
}

// runQuarantineRetention deletes quarantined messages whose date segment
// (quarantine/<user>/<yyyy-mm-dd>/<id>.eml) is older than the retention window.
func (cm *CronManager) runQuarantineRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.runQuarantineRetention")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	days := 14
	if cm.cfg.R2StorageConfig != nil && cm.cfg.R2StorageConfig.QuarantineRetentionDays > 0 {
		days = cm.cfg.R2StorageConfig.QuarantineRetentionDays
	}
	now := cm.now()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)

	keys, err := cm.quarantine.List(ctx, quarantinePrefix)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to list quarantined messages: %v", err)
		return
	}

	deleted := 0
	for _, key := range keys {
		day, ok := quarantineDay(key)
		if !ok || !day.Before(cutoff) {
			continue
		}
		if err := cm.quarantine.Delete(ctx, key); err != nil {
			tracing.TraceErr(span, err)
			cm.log.Warnf("Failed to delete quarantined message %s: %v", key, err)
			continue
		}
		deleted++
	}

	span.LogKV("result.deleted", deleted)
	cm.log.Infof("Quarantine retention removed %d of %d objects", deleted, len(keys))
}

func quarantineDay(key string) (time.Time, bool) {
	parts := strings.Split(strings.TrimPrefix(key, quarantinePrefix), "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	day, err := time.Parse("2006-01-02", parts[1])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
