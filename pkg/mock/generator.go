package mock

//go:generate minimock -g -i github.com/dallisoft/ingest-backend/pkg/repository.Repository -o ./ -s "_mock.gen.go"
//go:generate minimock -g -i github.com/dallisoft/ingest-backend/pkg/minio.MinioI -o ./ -s "_mock.gen.go"
//go:generate minimock -g -i github.com/dallisoft/ingest-backend/pkg/milvus.MilvusClientI -o ./ -s "_mock.gen.go"
//go:generate minimock -g -i github.com/dallisoft/ingest-backend/pkg/ai.EmbeddingClient -o ./ -s "_mock.gen.go"
//go:generate minimock -g -i github.com/dallisoft/ingest-backend/pkg/ai.AugmentationClient -o ./ -s "_mock.gen.go"
