// Package mock provides test doubles for the ai interfaces.
//
// The mocks let pipeline and search tests run without an embedding service.
// Vectors are deterministic: the same text always produces the same unit
// vector, so similarity assertions are stable.
//
//	provider := mock.NewMockProvider()
//	provider.GetMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("service unavailable")
//	})
//
//	count := provider.GetMockEmbedder().CallCount()
package mock
