package mocks

//go:generate mockery --name BucketStore --srcpkg github.com/aevon-lab/rollupd/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name Ingester --srcpkg github.com/aevon-lab/rollupd/internal/ingestion --output ./ingestion --outpkg ingestionmocks --with-expecter
