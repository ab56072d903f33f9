// Command nexrad-l3-gateway exposes Level-3 (NIDS) site/product/file
// listing and raw file serving over HTTP, adapted from the teacher's
// cmd/l2serv/l3.go (gin + GCS, no credentials file required since the
// bucket is public).
package main

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
	"github.com/kallsyms/nexrad-ingest/internal/objectstore"
	"github.com/sirupsen/logrus"
)

var cli struct {
	Addr     string `long:"addr" description:"listen address" default:"0.0.0.0:8082"`
	Bucket   string `long:"bucket" description:"GCS bucket to serve from" default:"gcp-public-data-nexrad-l3-realtime"`
	LogLevel string `long:"log-level" description:"logging level" choice:"error" choice:"info" choice:"debug" default:"info"`
}

func main() {
	if _, err := flags.Parse(&cli); err != nil {
		os.Exit(1)
	}

	levels := map[string]logrus.Level{"error": logrus.ErrorLevel, "info": logrus.InfoLevel, "debug": logrus.DebugLevel}
	logrus.SetLevel(levels[cli.LogLevel])

	client, err := objectstore.NewGCSClient(context.Background())
	if err != nil {
		logrus.Fatalf("connecting to GCS: %v", err)
	}

	gw := &gateway{client: client, bucket: cli.Bucket}

	r := gin.Default()
	r.GET("/l3/sites", gw.listSites)
	r.GET("/l3/:site/products", gw.listProducts)
	r.GET("/l3/:site/:product/files", gw.listFiles)
	r.GET("/l3/:site/:product/:fn", gw.serveFile)

	srv := &http.Server{
		Addr:    cli.Addr,
		Handler: r,
	}
	if err := srv.ListenAndServe(); err != nil {
		logrus.Fatal(err)
	}
}

type gateway struct {
	client objectstore.Client
	bucket string
}

// listPrefix lists the blobs and common (directory-like) prefixes under
// prefix, the way the teacher's listGCS helper does.
func (g *gateway) listPrefix(ctx context.Context, prefix string) (files, dirs []string, err error) {
	result, err := g.client.List(ctx, g.bucket, prefix, "/")
	if err != nil {
		return nil, nil, err
	}
	for _, obj := range result.Objects {
		files = append(files, baseName(obj.Key))
	}
	for _, p := range result.CommonPrefixes {
		dirs = append(dirs, baseName(p))
	}
	return files, dirs, nil
}

func baseName(p string) string {
	p = trimSuffixSlash(p)
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

func trimSuffixSlash(p string) string {
	if len(p) > 0 && p[len(p)-1] == '/' {
		return p[:len(p)-1]
	}
	return p
}

func (g *gateway) listSites(c *gin.Context) {
	_, sites, err := g.listPrefix(c.Request.Context(), "NIDS/")
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, sites)
}

func (g *gateway) listProducts(c *gin.Context) {
	site := c.Param("site")
	_, products, err := g.listPrefix(c.Request.Context(), "NIDS/"+site+"/")
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (g *gateway) listFiles(c *gin.Context) {
	site := c.Param("site")
	product := c.Param("product")
	files, _, err := g.listPrefix(c.Request.Context(), "NIDS/"+site+"/"+product+"/")
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// serveFile streams the raw NIDS payload; rendering it into an image is a
// downstream client's job, not this gateway's (spec.md's sweep/rendering
// scope is Level-2 only).
func (g *gateway) serveFile(c *gin.Context) {
	site := c.Param("site")
	product := c.Param("product")
	fn := c.Param("fn")

	body, _, err := g.client.Get(c.Request.Context(), g.bucket, "NIDS/"+site+"/"+product+"/"+fn)
	if err != nil {
		c.AbortWithError(http.StatusNotFound, err)
		return
	}
	defer body.Close()

	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/octet-stream")
	if _, err := io.Copy(c.Writer, body); err != nil {
		logrus.WithField("component", "l3gateway").Warnf("streaming %s: %v", fn, err)
	}
}
