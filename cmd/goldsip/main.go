package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/goldsip/goldsip/internal/clock"
	"github.com/goldsip/goldsip/internal/config"
	"github.com/goldsip/goldsip/internal/observability/metrics"
	redemptiondomain "github.com/goldsip/goldsip/internal/redemption/domain"
	"github.com/goldsip/goldsip/internal/server"
	subscriptiondomain "github.com/goldsip/goldsip/internal/subscription/domain"
	"github.com/goldsip/goldsip/pkg/db"
	"github.com/goldsip/goldsip/pkg/log"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		server.Module,

		fx.Invoke(migrate),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func migrate(gormDB *gorm.DB) error {
	return gormDB.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&redemptiondomain.RedemptionOrder{},
	)
}
