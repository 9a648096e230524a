package migrations_test

import (
	"path"

	"github.com/flowbot/media-migrator/internal/config"
	"github.com/flowbot/media-migrator/internal/store"
	"github.com/flowbot/media-migrator/pkg/migrations"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("migrations", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		cfg    *config.Config
	)

	BeforeAll(func() {
		cfg = config.NewDefault()
		cfg.Database.Type = "sqlite"
		cfg.Database.Name = path.Join(GinkgoT().TempDir(), "migrations.db")

		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
	})

	AfterAll(func() {
		s.Close()
	})

	Context("store migrations", Ordered, func() {
		It("fails to migrate the db -- migration folder does not exist", func() {
			cfg.Service.MigrationFolder = "some folder"
			err := migrations.MigrateStore(gormdb, cfg)
			Expect(err).NotTo(BeNil())
		})

		It("successfully migrates the db with the embedded migrations", func() {
			cfg.Service.MigrationFolder = ""
			err := migrations.MigrateStore(gormdb, cfg)
			Expect(err).To(BeNil())

			count := -1
			tx := gormdb.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'asset_mappings';").Scan(&count)
			Expect(tx.Error).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("is a no-op when run twice", func() {
			cfg.Service.MigrationFolder = ""
			Expect(migrations.MigrateStore(gormdb, cfg)).To(Succeed())
		})
	})
})
