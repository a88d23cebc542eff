package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/faucet"
	"github.com/blnkfinance/faucet/api/middleware"
	"github.com/blnkfinance/faucet/config"
)

type Api struct {
	faucet *faucet.Faucet
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/airdrop", middleware.AirdropAuthMiddleware(), a.Airdrop)
	router.GET("/prices", a.Prices)
	router.GET("/health", a.Health)
	return a.router
}

func NewAPI(f *faucet.Faucet) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if err := r.SetTrustedProxies(conf.Server.TrustedProxies); err != nil {
		logrus.WithError(err).Error("invalid trusted proxies, forwarded client addresses are ignored")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{faucet: f, router: r}
}
